package core

// Task is the unit of work accepted by the Scheduler.
//
// A task fails by returning a non-nil error or by panicking. Either way the
// current flush pass is aborted (see Scheduler.FlushMicroTaskQueue).
type Task interface {
	Call() error
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func() error

// Call invokes f.
func (f TaskFunc) Call() error { return f() }

// Func adapts a function that cannot fail to Task.
func Func(fn func()) Task {
	return TaskFunc(func() error {
		fn()
		return nil
	})
}

// ErrorHandler is an optional Task capability. When present, the handler
// receives the task's execution error instead of it being escalated to the
// ErrorReporter.
type ErrorHandler interface {
	OnError(err error)
}

// StackCarrier is an optional Task capability. When long stacks are enabled
// the Scheduler hands the chained enqueue stack to the task via SetStack.
type StackCarrier interface {
	SetStack(stack string)
	Stack() string
}

// =============================================================================
// Priority
// =============================================================================

// Priority selects the micro task tier.
type Priority int

const (
	// PriorityNormal is the default micro task tier.
	PriorityNormal Priority = iota

	// PriorityHigh tasks are drained to exhaustion before any further
	// normal micro task runs.
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// QueueKind identifies one of the three scheduler queues.
type QueueKind int

const (
	QueueMicro QueueKind = iota
	QueuePriorityMicro
	QueueMacro
)

func (k QueueKind) String() string {
	switch k {
	case QueueMicro:
		return "micro"
	case QueuePriorityMicro:
		return "priority_micro"
	case QueueMacro:
		return "macro"
	default:
		return "unknown"
	}
}

// =============================================================================
// Task helpers
// =============================================================================

type errorHandlingTask struct {
	Task
	onError func(err error)
}

func (t *errorHandlingTask) OnError(err error) { t.onError(err) }

// WithErrorHandler returns a task that runs task and routes its execution
// error to onError.
func WithErrorHandler(task Task, onError func(err error)) Task {
	return &errorHandlingTask{Task: task, onError: onError}
}

// TracedTask is a Task that keeps the chained enqueue stack assigned to it.
// Embed it, or wrap a function with NewTracedTask.
type TracedTask struct {
	Fn    func() error
	stack string
}

// NewTracedTask wraps fn in a TracedTask.
func NewTracedTask(fn func() error) *TracedTask {
	return &TracedTask{Fn: fn}
}

func (t *TracedTask) Call() error           { return t.Fn() }
func (t *TracedTask) SetStack(stack string) { t.stack = stack }
func (t *TracedTask) Stack() string         { return t.stack }

// queuedTask is a Task with its optional capabilities resolved once at
// enqueue time.
type queuedTask struct {
	task    Task
	onError ErrorHandler
	carrier StackCarrier
	stack   string
}

func newQueuedTask(task Task) *queuedTask {
	qt := &queuedTask{task: task}
	if h, ok := task.(ErrorHandler); ok {
		qt.onError = h
	}
	if c, ok := task.(StackCarrier); ok {
		qt.carrier = c
	}
	return qt
}

func (qt *queuedTask) setStack(stack string) {
	qt.stack = stack
	if qt.carrier != nil {
		qt.carrier.SetStack(stack)
	}
}

// call runs the task. A nil task panics here, inside the flush, like any
// other task failure.
func (qt *queuedTask) call() error {
	return qt.task.Call()
}
