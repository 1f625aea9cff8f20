// Package taskqueue provides a single-threaded, two-tier task queue for Go.
//
// Work is queued as micro tasks or macro tasks on a Scheduler that lives on
// one host loop goroutine. Micro tasks run as soon as the current host turn
// ends, before anything else the loop has queued; micro tasks they enqueue
// run in the same pass. Macro tasks run on a later turn, and macro tasks
// enqueued while flushing wait for the next flush.
//
// # Quick Start
//
// Initialize the global task queue at application startup:
//
//	taskqueue.InitGlobalTaskQueue(nil)
//	defer taskqueue.ShutdownGlobalTaskQueue()
//
// Queue work from any goroutine through Post:
//
//	q := taskqueue.GetGlobalTaskQueue()
//	q.Post(func(s *taskqueue.Scheduler) {
//		s.EnqueueTask(taskqueue.Func(func() { println("macro") }))
//		s.EnqueueMicroTask(taskqueue.Func(func() { println("micro") }))
//	})
//
// # Key Concepts
//
// Priority: micro tasks enqueued with PriorityHigh run before every normal
// micro task still queued, including ones enqueued earlier.
//
// Errors: a task fails by returning an error or panicking. The failure ends
// the flush pass and the remaining tasks of that pass are discarded. The
// error goes to the task's OnError handler if it has one (see
// WithErrorHandler), otherwise it is reported asynchronously to the
// configured core.ErrorReporter.
//
// Long stacks: with SchedulerConfig.LongStacks each task records where it
// was enqueued, chained through every task that led to it. Errors then carry
// the whole chain in TaskError.Stack.
//
// # Thread Safety
//
// A Scheduler is confined to its loop goroutine and takes no locks. Only
// Stats may be called from other goroutines.
package taskqueue
