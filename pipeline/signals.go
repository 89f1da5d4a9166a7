package pipeline

import (
	"context"
	"sync/atomic"
)

// Signals is the cooperative cancellation signal shared with a transfer.
// It is polled, never pushed: Check only reports whether cancellation has
// been requested as of the call.
type Signals struct {
	flag *atomic.Bool
	done <-chan struct{}
}

// EmptySignals never reports cancellation.
func EmptySignals() Signals {
	return Signals{}
}

// NewSignals returns signals backed by flag; setting the flag requests
// cancellation.
func NewSignals(flag *atomic.Bool) Signals {
	return Signals{flag: flag}
}

// SignalsFromContext returns signals that report cancellation once ctx is done.
func SignalsFromContext(ctx context.Context) Signals {
	return Signals{done: ctx.Done()}
}

// WithContext returns a copy of s that also observes ctx.
func (s Signals) WithContext(ctx context.Context) Signals {
	s.done = ctx.Done()
	return s
}

// Interrupted reports whether cancellation was requested.
func (s Signals) Interrupted() bool {
	if s.flag != nil && s.flag.Load() {
		return true
	}
	if s.done != nil {
		select {
		case <-s.done:
			return true
		default:
		}
	}
	return false
}

// Check returns a Cancelled error attributed to span if cancellation was
// requested, nil otherwise.
func (s Signals) Check(span Span) error {
	if s.Interrupted() {
		return NewError(Cancelled, "check", nil).WithSpan(span).WithMessage("operation interrupted")
	}
	return nil
}
