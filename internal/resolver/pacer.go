package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Pacer serializes calls per upstream and keeps at least the upstream's
// interval between the end of one call and the start of the next. Two
// callers never hold the same upstream at once.
type Pacer struct {
	clock clockwork.Clock

	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	mu      sync.Mutex
	lastEnd time.Time
}

// NewPacer returns a pacer driven by clock, or by the wall clock when clock
// is nil.
func NewPacer(clock clockwork.Clock) *Pacer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pacer{clock: clock, lanes: make(map[string]*lane)}
}

func (p *Pacer) lane(key string) *lane {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.lanes[key]
	if !ok {
		l = &lane{}
		p.lanes[key] = l
	}
	return l
}

// Acquire blocks until key is free and interval has passed since its last
// call ended. The returned release must be called exactly once, when the
// call has finished.
func (p *Pacer) Acquire(ctx context.Context, key string, interval time.Duration) (release func(), err error) {
	l := p.lane(key)
	l.mu.Lock()
	if err := p.waitSince(ctx, l.lastEnd, interval); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	return func() {
		l.lastEnd = p.clock.Now()
		l.mu.Unlock()
	}, nil
}

// Sleep blocks for d on the pacer's clock.
func (p *Pacer) Sleep(ctx context.Context, d time.Duration) error {
	return p.waitSince(ctx, p.clock.Now(), d)
}

func (p *Pacer) waitSince(ctx context.Context, t time.Time, d time.Duration) error {
	if t.IsZero() || d <= 0 {
		return ctx.Err()
	}
	wait := d - p.clock.Since(t)
	if wait <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(wait):
		return nil
	}
}
