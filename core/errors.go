package core

import (
	"errors"
	"fmt"
)

// ErrLoopClosed is returned by Loop operations that need a running loop.
var ErrLoopClosed = errors.New("loop is closed")

// PanicError is the error a task failure takes when the task panicked
// instead of returning an error.
type PanicError struct {
	Value any
	// Stack is the goroutine stack captured when the panic was recovered.
	Stack string
}

func newPanicError(value any, stack []byte) *PanicError {
	return &PanicError{Value: value, Stack: string(stack)}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// TaskError carries a task failure together with its long stack. It is only
// produced while long stacks are enabled and the failing task has a stack.
type TaskError struct {
	Err error
	// Stack is the failure's own stack with the flush machinery frames
	// trimmed, followed by the chain of enqueue stacks.
	Stack string
}

func (e *TaskError) Error() string {
	return e.Err.Error()
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// nativeStack returns the stack text an error carries by itself.
func nativeStack(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return pe.Stack
	}
	return ""
}

// withLongStack attaches the task's chained stack to err.
func withLongStack(err error, taskStack string) error {
	return &TaskError{
		Err:   err,
		Stack: filterFlushStack(nativeStack(err)) + taskStack,
	}
}

// longStack returns the most descriptive stack text attached to err.
func longStack(err error) string {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Stack
	}
	return nativeStack(err)
}
