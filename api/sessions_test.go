package api

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-count/count"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedRegistry() (*Registry, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	r := NewRegistry()
	r.now = clock.Now
	return r, clock
}

var registryLines = []count.ReconciledLine{
	{Reference: "A", CountedQuantity: 1, Difference: 1, ExistsInCatalog: true},
}

func TestRegistry_CreateAndWith(t *testing.T) {
	r := NewRegistry()

	s := r.Create("loc-1", count.TypeFull, registryLines)

	require.NotEmpty(t, s.ID)
	assert.Equal(t, 1, r.Len())
	var seen *count.Session
	require.NoError(t, r.With(s.ID, func(got *count.Session) error {
		seen = got
		return nil
	}))
	assert.Same(t, s, seen)
}

func TestRegistry_WithPassesThroughErrors(t *testing.T) {
	r := NewRegistry()
	s := r.Create("loc-1", count.TypeFull, registryLines)
	boom := errors.New("boom")

	err := r.With(s.ID, func(*count.Session) error { return boom })

	assert.ErrorIs(t, err, boom)
}

func TestRegistry_UnknownAndClosedSessions(t *testing.T) {
	r := NewRegistry()
	s := r.Create("loc-1", count.TypeFull, registryLines)

	assert.ErrorIs(t, r.With("nope", func(*count.Session) error { return nil }), count.ErrSessionNotFound)

	// A session abandoned while still registered is reported as gone.
	s.Abandon()
	assert.ErrorIs(t, r.With(s.ID, func(*count.Session) error { return nil }), count.ErrSessionNotFound)

	r.Remove(s.ID)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ExpireIdle(t *testing.T) {
	// GIVEN: Two sessions, one touched recently
	r, clock := newClockedRegistry()
	stale := r.Create("loc-1", count.TypeFull, registryLines)
	fresh := r.Create("loc-1", count.TypeFull, registryLines)
	clock.Advance(90 * time.Minute)
	require.NoError(t, r.With(fresh.ID, func(*count.Session) error { return nil }))
	clock.Advance(45 * time.Minute)

	// WHEN: Expiring sessions idle for more than two hours
	expired := r.ExpireIdle(2 * time.Hour)

	// THEN: Only the stale one is abandoned and dropped
	assert.Equal(t, []count.SessionID{stale.ID}, expired)
	assert.True(t, stale.Closed())
	assert.False(t, fresh.Closed())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	a := r.Create("loc-1", count.TypeFull, registryLines)
	b := r.Create("loc-2", count.TypePartial, nil)

	assert.Equal(t, 2, r.Clear())

	assert.Equal(t, 0, r.Len())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
}

func TestRegistry_ConcurrentOverrides(t *testing.T) {
	// GIVEN: One session edited from many goroutines
	r := NewRegistry()
	s := r.Create("loc-1", count.TypeFull, registryLines)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.With(s.ID, func(s *count.Session) error {
				return s.SetManualQuantity("A", "3")
			})
		}()
	}
	wg.Wait()

	// THEN: The difference invariant holds
	require.NoError(t, r.With(s.ID, func(s *count.Session) error {
		l, _ := s.Line("A")
		assert.Equal(t, 3, l.ManualQuantity)
		assert.Equal(t, l.CountedQuantity+l.ManualQuantity-l.SystemQuantity, l.Difference)
		return nil
	}))
}

// =============================================================================
// SWEEPER
// =============================================================================

func TestSessionSweeper_Sweep(t *testing.T) {
	r, clock := newClockedRegistry()
	r.Create("loc-1", count.TypeFull, registryLines)
	sweeper := NewSessionSweeper(r, quietLogger())
	sweeper.TTL = time.Hour

	assert.Equal(t, 0, sweeper.Sweep())
	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, sweeper.Sweep())
	assert.Equal(t, 0, r.Len())
}

func TestSessionSweeper_StartStop(t *testing.T) {
	// GIVEN: A sweeper ticking every few milliseconds with a zero TTL
	r := NewRegistry()
	r.Create("loc-1", count.TypeFull, registryLines)
	sweeper := NewSessionSweeper(r, quietLogger())
	sweeper.CheckInterval = 5 * time.Millisecond
	sweeper.TTL = 0

	// WHEN: Started
	sweeper.Start()
	sweeper.Start() // no-op
	defer sweeper.Stop()

	// THEN: The session is discarded in the background
	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)

	// AND: The sweeper can be stopped and restarted
	sweeper.Stop()
	sweeper.Stop()
	sweeper.Start()
}

func TestSessionSweeper_Disabled(t *testing.T) {
	r := NewRegistry()
	sweeper := NewSessionSweeper(r, quietLogger())
	sweeper.Enabled = false

	sweeper.Start()
	defer sweeper.Stop()

	assert.Nil(t, sweeper.ticker)
}
