package core

import (
	"sync"
)

// fakeHost records posted callbacks so tests decide when host turns happen.
type fakeHost struct {
	mu     sync.Mutex
	posted []func()
	closed bool
	reject bool
}

func (h *fakeHost) Post(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.reject {
		return false
	}
	h.posted = append(h.posted, fn)
	return true
}

func (h *fakeHost) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *fakeHost) pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.posted)
}

// runPosted runs host turns until nothing is left.
func (h *fakeHost) runPosted() {
	for {
		h.mu.Lock()
		if len(h.posted) == 0 {
			h.mu.Unlock()
			return
		}
		fn := h.posted[0]
		h.posted = h.posted[1:]
		h.mu.Unlock()
		fn()
	}
}

// countingTrigger counts flush requests without scheduling anything.
func countingTrigger(n *int) TriggerFactory {
	return func(flush func()) RequestFlush {
		return func() { *n++ }
	}
}

// recordingReporter collects uncaught errors.
type recordingReporter struct {
	mu     sync.Mutex
	errs   []error
	notify chan error
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{notify: make(chan error, 16)}
}

func (r *recordingReporter) ReportUncaught(schedulerName string, err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.notify <- err
}

func (r *recordingReporter) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// newTestScheduler builds a quiet scheduler on host whose triggers only
// count requests.
func newTestScheduler(host Host, microRequests, macroRequests *int, mutate ...func(*SchedulerConfig)) *Scheduler {
	var micro, macro int
	if microRequests == nil {
		microRequests = &micro
	}
	if macroRequests == nil {
		macroRequests = &macro
	}

	config := &SchedulerConfig{
		Name:          "test",
		MicroTrigger:  countingTrigger(microRequests),
		MacroTrigger:  countingTrigger(macroRequests),
		ErrorReporter: newRecordingReporter(),
		Logger:        NewNoOpLogger(),
	}
	for _, fn := range mutate {
		fn(config)
	}
	return NewScheduler(host, config)
}

// recorder appends labels in execution order.
type recorder struct {
	order []string
}

func (r *recorder) task(label string) Task {
	return Func(func() { r.order = append(r.order, label) })
}
