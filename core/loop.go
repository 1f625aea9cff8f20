package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

const defaultLoopQueueSize = 100

// LoopConfig holds configuration options for Loop.
type LoopConfig struct {
	// Name labels logs and stats. Defaults to "loop".
	Name string

	// QueueSize bounds each inbox. Defaults to 100.
	QueueSize int

	// Logger defaults to NewDefaultLogger.
	Logger Logger
}

// Loop binds a dedicated goroutine that runs posted callbacks one at a time.
// It is the host event loop a Scheduler lives on: every callback, and so
// every flush pass, runs on the same goroutine.
//
// Loop has two inboxes. Callbacks posted with PostImmediate run before any
// callback posted with Post, which makes it an ImmediateHost.
type Loop struct {
	workQueue      chan func()
	immediateQueue chan func()

	// Lifecycle control
	ctx    context.Context
	cancel context.CancelFunc

	// For graceful shutdown
	stopped      chan struct{}
	once         sync.Once
	closed       atomic.Bool
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	name   string
	logger Logger

	executed atomic.Int64
	rejected atomic.Int64
	panics   atomic.Int64
}

var _ ImmediateHost = (*Loop)(nil)

// NewLoop creates and starts a new Loop.
// It immediately spawns a dedicated goroutine for callback execution.
func NewLoop(config *LoopConfig) *Loop {
	if config == nil {
		config = &LoopConfig{}
	}
	size := config.QueueSize
	if size <= 0 {
		size = defaultLoopQueueSize
	}
	name := config.Name
	if name == "" {
		name = "loop"
	}
	logger := config.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		workQueue:      make(chan func(), size),
		immediateQueue: make(chan func(), size),
		ctx:            ctx,
		cancel:         cancel,
		stopped:        make(chan struct{}),
		shutdownChan:   make(chan struct{}),
		name:           name,
		logger:         logger,
	}

	// Start the dedicated message loop
	go l.runLoop()

	return l
}

// Name returns the name of the loop
func (l *Loop) Name() string {
	return l.name
}

// Post queues fn for an ordinary turn of the loop. It never blocks and
// returns false when the inbox is full or the loop is closed.
func (l *Loop) Post(fn func()) bool {
	return l.tryPost(l.workQueue, fn)
}

// PostImmediate queues fn ahead of every ordinary turn. It never blocks and
// returns false when the inbox is full or the loop is closed.
func (l *Loop) PostImmediate(fn func()) bool {
	return l.tryPost(l.immediateQueue, fn)
}

func (l *Loop) tryPost(queue chan func(), fn func()) bool {
	// Check if loop is closed to avoid queueing work nobody will run
	if l.closed.Load() {
		l.rejected.Add(1)
		return false
	}

	select {
	case <-l.ctx.Done():
		l.rejected.Add(1)
		return false
	case queue <- fn:
		return true
	default:
		l.rejected.Add(1)
		return false
	}
}

// postBlocking waits for room in the ordinary inbox.
func (l *Loop) postBlocking(ctx context.Context, fn func()) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ctx.Done():
		return ErrLoopClosed
	case l.workQueue <- fn:
		return nil
	}
}

// Shutdown marks the loop as closed and signals shutdown waiters.
// Unlike Stop(), this method does NOT wait for the runLoop to exit,
// so it may be called from a callback running on the loop.
func (l *Loop) Shutdown() {
	l.shutdownOnce.Do(func() {
		l.closed.Store(true)
		l.cancel()
		close(l.shutdownChan)
	})
}

// IsClosed returns true if the loop has been shut down
func (l *Loop) IsClosed() bool {
	return l.closed.Load()
}

// Stop stops the loop and waits for the current callback to complete.
// Must not be called from a callback running on the loop.
func (l *Loop) Stop() {
	l.once.Do(func() {
		l.Shutdown()
		<-l.stopped
	})
}

// runLoop is the core of this loop, it occupies a dedicated goroutine
func (l *Loop) runLoop() {
	defer close(l.stopped)

	for {
		// Immediate callbacks always go first
		select {
		case fn := <-l.immediateQueue:
			l.execute(fn)
			continue
		default:
		}

		select {
		case fn := <-l.immediateQueue:
			l.execute(fn)
		case fn := <-l.workQueue:
			l.execute(fn)
		case <-l.ctx.Done():
			return
		}
	}
}

func (l *Loop) execute(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			l.panics.Add(1)
			l.logger.Error("loop callback panicked",
				F("loop", l.name),
				F("panic", rec),
				F("stack", string(debug.Stack())),
			)
		}
	}()
	l.executed.Add(1)
	fn()
}

// =============================================================================
// Synchronization Methods
// =============================================================================

// WaitIdle blocks until all callbacks posted before it have run, including
// every immediate callback they posted in turn.
//
// Returns ErrLoopClosed if the loop is closed, or the context error.
func (l *Loop) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})

	if err := l.postBlocking(ctx, func() { close(done) }); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrLoopClosed
	}
}

// WaitShutdown blocks until Shutdown() is called on this loop.
//
// Returns error if context is cancelled or deadline exceeded.
func (l *Loop) WaitShutdown(ctx context.Context) error {
	select {
	case <-l.shutdownChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the loop state.
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		Name:             l.name,
		Pending:          len(l.workQueue),
		ImmediatePending: len(l.immediateQueue),
		Executed:         l.executed.Load(),
		Rejected:         l.rejected.Load(),
		Panics:           l.panics.Load(),
		Closed:           l.closed.Load(),
	}
}
