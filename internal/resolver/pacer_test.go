package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_NoOverlapPerKey(t *testing.T) {
	p := NewPacer(nil)
	var inFlight, maxInFlight int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := p.Acquire(context.Background(), "yts", 0)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inFlight, 1)
			for {
				m := atomic.LoadInt32(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight)
}

func TestPacer_SpacesFromEndOfCall(t *testing.T) {
	fc := clockwork.NewFakeClock()
	p := NewPacer(fc)
	interval := 300 * time.Millisecond

	release, err := p.Acquire(context.Background(), "yts", interval)
	require.NoError(t, err)
	fc.Advance(250 * time.Millisecond) // a slow call
	release()
	end := fc.Now()

	// Other upstreams are not held back.
	other, err := p.Acquire(context.Background(), "td", interval)
	require.NoError(t, err)
	other()

	acquired := make(chan time.Time, 1)
	go func() {
		release, err := p.Acquire(context.Background(), "yts", interval)
		if assert.NoError(t, err) {
			acquired <- fc.Now()
			release()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))

	fc.Advance(interval - time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("acquired before the interval had passed")
	case <-time.After(20 * time.Millisecond):
	}

	fc.Advance(time.Millisecond)
	select {
	case got := <-acquired:
		assert.Equal(t, interval, got.Sub(end))
	case <-time.After(2 * time.Second):
		t.Fatal("acquire never returned")
	}
}

func TestPacer_Sleep(t *testing.T) {
	fc := clockwork.NewFakeClock()
	p := NewPacer(fc)

	done := make(chan error, 1)
	go func() { done <- p.Sleep(context.Background(), 500*time.Millisecond) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(500 * time.Millisecond)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sleep never returned")
	}
}

func TestPacer_ContextCancel(t *testing.T) {
	p := NewPacer(clockwork.NewFakeClock())
	release, err := p.Acquire(context.Background(), "slow", time.Hour)
	require.NoError(t, err)
	release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Acquire(ctx, "slow", time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, p.Sleep(ctx, time.Hour), context.Canceled)
}
