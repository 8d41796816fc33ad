package responder

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

var cannedReplies = []string{
	"Thank you for your email. I will get back to you shortly.",
	"I appreciate your message, and I'll respond as soon as possible.",
	"Your inquiry has been received. I'll review it and reply soon.",
	"Thanks for reaching out. Expect a detailed response shortly.",
}

// Mock returns canned replies after a simulated model latency. The delay is
// drawn from an exponential distribution with mean DelayScale and clamped to
// [MinDelay, MaxDelay]. A zero MaxDelay disables the delay.
type Mock struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	DelayScale time.Duration

	counter atomic.Uint64
}

// NewMock creates a Mock. Zero arguments are kept as given; use
// DefaultMock for the usual 0.4s–0.6s latency.
func NewMock(minDelay, maxDelay, scale time.Duration) *Mock {
	return &Mock{MinDelay: minDelay, MaxDelay: maxDelay, DelayScale: scale}
}

// DefaultMock simulates a model with 0.4s–0.6s latency.
func DefaultMock() *Mock {
	return NewMock(400*time.Millisecond, 600*time.Millisecond, 500*time.Millisecond)
}

// Generate waits for the simulated latency and returns the next canned reply.
func (m *Mock) Generate(ctx context.Context, subject, _ string) (string, error) {
	if d := m.delay(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	n := m.counter.Add(1) - 1
	return format(subject, cannedReplies[n%uint64(len(cannedReplies))]), nil
}

func (m *Mock) delay() time.Duration {
	if m.MaxDelay <= 0 {
		return 0
	}
	d := time.Duration(rand.ExpFloat64() * float64(m.DelayScale))
	if d < m.MinDelay {
		d = m.MinDelay
	}
	if d > m.MaxDelay {
		d = m.MaxDelay
	}
	return d
}
