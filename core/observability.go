package core

import "time"

// SchedulerStats represents runtime observability state for a Scheduler.
// Pending counts are refreshed on every enqueue and at the end of every pass.
type SchedulerStats struct {
	Name            string
	MicroPending    int
	PriorityPending int
	MacroPending    int
	Flushing        bool
	LongStacks      bool
	MicroFlushes    int64
	MacroFlushes    int64
	TasksExecuted   int64
	TaskErrors      int64
	TasksDropped    int64
	Compactions     int64
	LastFlushAt     time.Time
}

// LoopStats represents runtime observability state for a Loop.
type LoopStats struct {
	Name             string
	Pending          int
	ImmediatePending int
	Executed         int64
	Rejected         int64
	Panics           int64
	Closed           bool
}
