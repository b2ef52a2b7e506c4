/*
scheduler.go - Idle session sweeper

PURPOSE:
  Review sessions are held in memory until they are closed. A session left
  open (browser closed, count abandoned) is discarded once it has been idle
  for longer than the TTL. Nothing is committed for a discarded session.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick calls Registry.ExpireIdle(TTL)
  - Logs every discarded session

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - TTL:           Idle time before a session is discarded (default: 2 hours)
  - Enabled:       Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewSessionSweeper(registry, logger)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - sessions.go: Registry
*/
package api

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SessionSweeper discards idle review sessions.
type SessionSweeper struct {
	Registry      *Registry
	Logger        logrus.FieldLogger
	CheckInterval time.Duration
	TTL           time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSessionSweeper creates a new sweeper.
func NewSessionSweeper(registry *Registry, logger logrus.FieldLogger) *SessionSweeper {
	return &SessionSweeper{
		Registry:      registry,
		Logger:        logger,
		CheckInterval: time.Minute,
		TTL:           2 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the sweeper.
func (ss *SessionSweeper) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled || ss.CheckInterval <= 0 {
		ss.Logger.Info("session sweeper disabled")
		return
	}
	if ss.ticker != nil {
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.stop = make(chan struct{})
	ss.wg.Add(1)

	go ss.run()

	ss.Logger.WithFields(logrus.Fields{
		"interval": ss.CheckInterval.String(),
		"ttl":      ss.TTL.String(),
	}).Info("session sweeper started")
}

// Stop stops the sweeper.
func (ss *SessionSweeper) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		ss.ticker = nil
		ss.Logger.Info("session sweeper stopped")
	}
}

func (ss *SessionSweeper) run() {
	defer ss.wg.Done()

	for {
		select {
		case <-ss.ticker.C:
			ss.Sweep()
		case <-ss.stop:
			return
		}
	}
}

// Sweep discards idle sessions once and returns how many were dropped.
func (ss *SessionSweeper) Sweep() int {
	expired := ss.Registry.ExpireIdle(ss.TTL)
	for _, id := range expired {
		ss.Logger.WithField("session_id", id).Info("discarded idle review session")
	}
	return len(expired)
}
