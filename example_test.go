package taskqueue_test

import (
	"context"
	"errors"
	"fmt"

	taskqueue "github.com/Swind/go-task-queue"
)

// ExampleTaskQueue demonstrates micro tasks running ahead of macro tasks.
func ExampleTaskQueue() {
	q := taskqueue.NewTaskQueue(nil)
	defer q.Stop()

	done := make(chan struct{})
	q.Post(func(s *taskqueue.Scheduler) {
		s.EnqueueTask(taskqueue.Func(func() {
			fmt.Println("macro")
			close(done)
		}))
		s.EnqueueMicroTask(taskqueue.Func(func() {
			fmt.Println("micro")
		}))
		fmt.Println("sync")
	})

	<-done

	// Output:
	// sync
	// micro
	// macro
}

// ExamplePriorityHigh demonstrates a high priority micro task preempting
// normal ones.
func ExamplePriorityHigh() {
	q := taskqueue.NewTaskQueue(nil)
	defer q.Stop()

	q.Post(func(s *taskqueue.Scheduler) {
		s.EnqueueMicroTask(taskqueue.Func(func() { fmt.Println("normal 1") }))
		s.EnqueueMicroTask(taskqueue.Func(func() { fmt.Println("normal 2") }))
		s.EnqueueMicroTask(taskqueue.Func(func() { fmt.Println("high") }), taskqueue.PriorityHigh)
	})
	_ = q.WaitIdle(context.Background())

	// Output:
	// high
	// normal 1
	// normal 2
}

// ExampleWithErrorHandler demonstrates a task handling its own failure.
func ExampleWithErrorHandler() {
	q := taskqueue.NewTaskQueue(nil)
	defer q.Stop()

	done := make(chan struct{})
	q.Post(func(s *taskqueue.Scheduler) {
		failing := taskqueue.TaskFunc(func() error { return errors.New("disk full") })
		s.EnqueueMicroTask(taskqueue.WithErrorHandler(failing, func(err error) {
			fmt.Println("handled:", err)
			close(done)
		}))
	})

	<-done

	// Output:
	// handled: disk full
}
