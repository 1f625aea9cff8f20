package taskqueue

import (
	"context"
	"sync"

	"github.com/Swind/go-task-queue/core"
)

// TaskQueue pairs a Scheduler with the Loop it lives on.
//
// The Scheduler is confined to the loop goroutine, so work from other
// goroutines enters through Post.
type TaskQueue struct {
	loop      *core.Loop
	scheduler *core.Scheduler
}

// NewTaskQueue starts a Loop and creates a Scheduler on it.
// A nil config uses core.DefaultSchedulerConfig.
func NewTaskQueue(config *core.SchedulerConfig) *TaskQueue {
	if config == nil {
		config = core.DefaultSchedulerConfig()
	}
	loop := core.NewLoop(&core.LoopConfig{
		Name:   config.Name,
		Logger: config.Logger,
	})
	return &TaskQueue{
		loop:      loop,
		scheduler: core.NewScheduler(loop, config),
	}
}

// NewTaskQueueFromFile builds a TaskQueue from a YAML config file.
func NewTaskQueueFromFile(path string) (*TaskQueue, error) {
	cfg, err := core.LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	return NewTaskQueueFromConfig(cfg)
}

// NewTaskQueueFromConfig builds a TaskQueue from a parsed file config.
func NewTaskQueueFromConfig(cfg *core.FileConfig) (*TaskQueue, error) {
	logger := cfg.Logger()
	loop := core.NewLoop(cfg.LoopConfig(logger))

	config, err := cfg.SchedulerConfig(loop, logger)
	if err != nil {
		loop.Stop()
		return nil, err
	}
	return &TaskQueue{
		loop:      loop,
		scheduler: core.NewScheduler(loop, config),
	}, nil
}

// Loop returns the host loop.
func (q *TaskQueue) Loop() *core.Loop {
	return q.loop
}

// Scheduler returns the scheduler. Its Enqueue and Flush methods must only
// be called on the loop goroutine.
func (q *TaskQueue) Scheduler() *core.Scheduler {
	return q.scheduler
}

// Post runs fn with the scheduler on a later loop turn. It returns false
// if the loop is closed or its inbox is full.
func (q *TaskQueue) Post(fn func(s *core.Scheduler)) bool {
	return q.loop.Post(func() { fn(q.scheduler) })
}

// WaitIdle blocks until everything posted before the call has run.
func (q *TaskQueue) WaitIdle(ctx context.Context) error {
	return q.loop.WaitIdle(ctx)
}

// Stats returns the scheduler and loop snapshots.
func (q *TaskQueue) Stats() (core.SchedulerStats, core.LoopStats) {
	return q.scheduler.Stats(), q.loop.Stats()
}

// Stop shuts the loop down and waits for its goroutine to exit. Queued
// tasks that have not run are discarded.
func (q *TaskQueue) Stop() {
	q.loop.Stop()
}

// =============================================================================
// Global Task Queue Helper (Singleton)
// =============================================================================

var (
	globalTaskQueue *TaskQueue
	globalMu        sync.Mutex
)

// InitGlobalTaskQueue initializes the global task queue. A nil config uses
// the defaults. Calling it again before ShutdownGlobalTaskQueue is a no-op.
func InitGlobalTaskQueue(config *core.SchedulerConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalTaskQueue != nil {
		return // Already initialized
	}

	if config == nil {
		config = core.DefaultSchedulerConfig()
		config.Name = "global"
	}
	globalTaskQueue = NewTaskQueue(config)
}

// GetGlobalTaskQueue returns the global task queue instance.
// It panics if InitGlobalTaskQueue has not been called.
func GetGlobalTaskQueue() *TaskQueue {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalTaskQueue == nil {
		panic("GlobalTaskQueue not initialized. Call InitGlobalTaskQueue() first.")
	}
	return globalTaskQueue
}

// ShutdownGlobalTaskQueue stops the global task queue.
func ShutdownGlobalTaskQueue() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalTaskQueue != nil {
		globalTaskQueue.Stop()
		globalTaskQueue = nil
	}
}
