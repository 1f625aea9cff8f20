package core

import (
	"time"
)

// DefaultFallbackInterval is the retry period of the timer trigger and so
// the worst-case latency between a queue turning non-empty and its flush.
const DefaultFallbackInterval = 50 * time.Millisecond

// Host is the event loop a Scheduler lives on.
type Host interface {
	// Post schedules fn for a later turn of the loop. It must not block and
	// reports whether fn was accepted.
	Post(fn func()) bool

	// IsClosed reports whether the loop will never run posted work again.
	IsClosed() bool
}

// ImmediateHost is a Host that can run a callback ahead of its ordinary
// turns. Hosts implementing it get the immediate flush trigger for the micro
// tier.
type ImmediateHost interface {
	Host
	PostImmediate(fn func()) bool
}

// RequestFlush asks for the bound flush to run asynchronously, soon.
type RequestFlush func()

// TriggerFactory binds a flush function to a flush-trigger strategy.
type TriggerFactory func(flush func()) RequestFlush

// TimerTrigger posts the flush to host from a zero-delay timer. A ticker
// retries every interval until the host accepts it, so the flush starts at
// most one interval after the request unless the host is closed.
func TimerTrigger(host Host, interval time.Duration, logger Logger) TriggerFactory {
	if interval <= 0 {
		interval = DefaultFallbackInterval
	}
	if logger == nil {
		logger = NewNoOpLogger()
	}

	return func(flush func()) RequestFlush {
		return func() {
			timer := time.NewTimer(0)
			ticker := time.NewTicker(interval)

			go func() {
				defer timer.Stop()
				defer ticker.Stop()

				for attempt := 0; ; attempt++ {
					select {
					case <-timer.C:
					case <-ticker.C:
					}

					if host.Post(flush) {
						return
					}
					if host.IsClosed() {
						return
					}
					logger.Debug("flush request rejected by host, retrying", F("attempt", attempt))
				}
			}()
		}
	}
}

// ImmediateTrigger posts the flush to the host's immediate inbox, falling
// back to fallback when the host does not take it.
func ImmediateTrigger(host ImmediateHost, fallback TriggerFactory) TriggerFactory {
	return func(flush func()) RequestFlush {
		var slow RequestFlush
		if fallback != nil {
			slow = fallback(flush)
		}

		return func() {
			if host.PostImmediate(flush) {
				return
			}
			if slow != nil && !host.IsClosed() {
				slow()
			}
		}
	}
}

// ManualTrigger never schedules anything; flushes happen only when the
// owner calls FlushMicroTaskQueue / FlushTaskQueue itself.
func ManualTrigger() TriggerFactory {
	return func(flush func()) RequestFlush {
		return func() {}
	}
}

// selectTriggers picks the strategies for both tiers from what the host
// supports. Explicit config overrides win.
func selectTriggers(host Host, config *SchedulerConfig, logger Logger) (micro, macro TriggerFactory) {
	micro, macro = config.MicroTrigger, config.MacroTrigger
	if host == nil {
		if micro == nil {
			micro = ManualTrigger()
		}
		if macro == nil {
			macro = ManualTrigger()
		}
		return micro, macro
	}

	timer := TimerTrigger(host, config.FallbackInterval, logger)
	if micro == nil {
		if ih, ok := host.(ImmediateHost); ok {
			micro = ImmediateTrigger(ih, timer)
		} else {
			micro = timer
		}
	}
	if macro == nil {
		macro = timer
	}
	return micro, macro
}
