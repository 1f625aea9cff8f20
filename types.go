package taskqueue

import "github.com/Swind/go-task-queue/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the taskqueue package for most use cases.

// Task is the unit of work
type Task = core.Task

// TaskFunc adapts a function returning an error to Task
type TaskFunc = core.TaskFunc

// TracedTask keeps the long stack assigned at enqueue time
type TracedTask = core.TracedTask

// Priority selects the micro task tier
type Priority = core.Priority

// Scheduler is the two-tier task queue
type Scheduler = core.Scheduler

// SchedulerConfig configures a Scheduler
type SchedulerConfig = core.SchedulerConfig

// PanicError and TaskError are the error types task failures take
type (
	PanicError = core.PanicError
	TaskError  = core.TaskError
)

// Priority constants
const (
	PriorityNormal Priority = core.PriorityNormal
	PriorityHigh   Priority = core.PriorityHigh
)

// Convenience functions for creating tasks
var (
	Func                   = core.Func
	WithErrorHandler       = core.WithErrorHandler
	NewTracedTask          = core.NewTracedTask
	DefaultSchedulerConfig = core.DefaultSchedulerConfig
)
