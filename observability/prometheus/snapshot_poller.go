package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-task-queue/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// LoopSnapshotProvider provides current loop stats snapshots.
type LoopSnapshotProvider interface {
	Stats() core.LoopStats
}

// SnapshotPoller periodically exports scheduler/loop Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	loopsMu sync.RWMutex
	loops   map[string]LoopSnapshotProvider

	schedulerPending    *prom.GaugeVec
	schedulerFlushes    *prom.GaugeVec
	schedulerDropped    *prom.GaugeVec
	schedulerLongStacks *prom.GaugeVec

	loopPending  *prom.GaugeVec
	loopRejected *prom.GaugeVec
	loopPanics   *prom.GaugeVec
	loopClosed   *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	schedulerPending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskqueue",
		Name:      "scheduler_pending",
		Help:      "Number of pending tasks per scheduler queue.",
	}, []string{"scheduler", "queue"})
	schedulerFlushes := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskqueue",
		Name:      "scheduler_flushes_total",
		Help:      "Scheduler flush pass count snapshot.",
	}, []string{"scheduler", "queue"})
	schedulerDropped := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskqueue",
		Name:      "scheduler_dropped_total",
		Help:      "Tasks discarded by aborted flush passes, snapshot.",
	}, []string{"scheduler"})
	schedulerLongStacks := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskqueue",
		Name:      "scheduler_long_stacks",
		Help:      "Long stack tracing state (1=enabled, 0=disabled).",
	}, []string{"scheduler"})

	loopPending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskqueue",
		Name:      "loop_pending",
		Help:      "Callbacks waiting per loop inbox.",
	}, []string{"loop", "inbox"})
	loopRejected := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskqueue",
		Name:      "loop_rejected_total",
		Help:      "Loop rejected post count snapshot.",
	}, []string{"loop"})
	loopPanics := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskqueue",
		Name:      "loop_panics_total",
		Help:      "Loop callback panic count snapshot.",
	}, []string{"loop"})
	loopClosed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskqueue",
		Name:      "loop_closed",
		Help:      "Loop closed state (1=closed, 0=open).",
	}, []string{"loop"})

	var err error
	if schedulerPending, err = registerCollector(reg, schedulerPending); err != nil {
		return nil, err
	}
	if schedulerFlushes, err = registerCollector(reg, schedulerFlushes); err != nil {
		return nil, err
	}
	if schedulerDropped, err = registerCollector(reg, schedulerDropped); err != nil {
		return nil, err
	}
	if schedulerLongStacks, err = registerCollector(reg, schedulerLongStacks); err != nil {
		return nil, err
	}
	if loopPending, err = registerCollector(reg, loopPending); err != nil {
		return nil, err
	}
	if loopRejected, err = registerCollector(reg, loopRejected); err != nil {
		return nil, err
	}
	if loopPanics, err = registerCollector(reg, loopPanics); err != nil {
		return nil, err
	}
	if loopClosed, err = registerCollector(reg, loopClosed); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:            interval,
		schedulers:          make(map[string]SchedulerSnapshotProvider),
		loops:               make(map[string]LoopSnapshotProvider),
		schedulerPending:    schedulerPending,
		schedulerFlushes:    schedulerFlushes,
		schedulerDropped:    schedulerDropped,
		schedulerLongStacks: schedulerLongStacks,
		loopPending:         loopPending,
		loopRejected:        loopRejected,
		loopPanics:          loopPanics,
		loopClosed:          loopClosed,
	}, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// AddLoop adds or replaces a loop snapshot provider by name.
func (p *SnapshotPoller) AddLoop(name string, provider LoopSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "loop")
	p.loopsMu.Lock()
	p.loops[name] = provider
	p.loopsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.schedulersMu.RLock()
	for name, provider := range p.schedulers {
		stats := provider.Stats()
		p.schedulerPending.WithLabelValues(name, core.QueueMicro.String()).Set(float64(stats.MicroPending))
		p.schedulerPending.WithLabelValues(name, core.QueuePriorityMicro.String()).Set(float64(stats.PriorityPending))
		p.schedulerPending.WithLabelValues(name, core.QueueMacro.String()).Set(float64(stats.MacroPending))
		p.schedulerFlushes.WithLabelValues(name, core.QueueMicro.String()).Set(float64(stats.MicroFlushes))
		p.schedulerFlushes.WithLabelValues(name, core.QueueMacro.String()).Set(float64(stats.MacroFlushes))
		p.schedulerDropped.WithLabelValues(name).Set(float64(stats.TasksDropped))
		p.schedulerLongStacks.WithLabelValues(name).Set(gaugeBool(stats.LongStacks))
	}
	p.schedulersMu.RUnlock()

	p.loopsMu.RLock()
	for name, provider := range p.loops {
		stats := provider.Stats()
		p.loopPending.WithLabelValues(name, "ordinary").Set(float64(stats.Pending))
		p.loopPending.WithLabelValues(name, "immediate").Set(float64(stats.ImmediatePending))
		p.loopRejected.WithLabelValues(name).Set(float64(stats.Rejected))
		p.loopPanics.WithLabelValues(name).Set(float64(stats.Panics))
		p.loopClosed.WithLabelValues(name).Set(gaugeBool(stats.Closed))
	}
	p.loopsMu.RUnlock()
}

func gaugeBool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
