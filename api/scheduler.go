/*
scheduler.go - Idle tender session reaper

PURPOSE:
  A register that walks away from a half-finished tender leaves its session
  in memory. The reaper periodically aborts sessions nobody touched for
  IdleTTL and drops them from the registry. Aborting never touches storage,
  so reaping is always safe.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - A session touched between the scan and the abort is left alone
  - Zero IdleTTL disables the reaper

USAGE:
  reaper := NewSessionReaper(handler.Sessions, 30*time.Minute, logger)
  reaper.Start()
  // ... later
  reaper.Stop()

SEE ALSO:
  - sessions.go: SessionRegistry
*/
package api

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/tender-engine/cash"
)

// SessionReaper aborts idle tender sessions.
type SessionReaper struct {
	Sessions      *SessionRegistry
	IdleTTL       time.Duration
	CheckInterval time.Duration
	Log           zerolog.Logger
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSessionReaper creates a reaper that checks every IdleTTL/4 (at least
// once a second).
func NewSessionReaper(sessions *SessionRegistry, idleTTL time.Duration, log zerolog.Logger) *SessionReaper {
	interval := idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	return &SessionReaper{
		Sessions:      sessions,
		IdleTTL:       idleTTL,
		CheckInterval: interval,
		Log:           log,
		Now:           time.Now,
	}
}

// Start begins the reaper.
func (sr *SessionReaper) Start() {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if sr.IdleTTL <= 0 {
		sr.Log.Info().Msg("session reaper disabled")
		return
	}
	if sr.ticker != nil {
		return
	}

	sr.ticker = time.NewTicker(sr.CheckInterval)
	sr.stop = make(chan struct{})
	sr.wg.Add(1)

	go sr.run(sr.ticker, sr.stop)

	sr.Log.Info().Dur("idle_ttl", sr.IdleTTL).Dur("interval", sr.CheckInterval).Msg("session reaper started")
}

// Stop stops the reaper and waits for an in-flight sweep.
func (sr *SessionReaper) Stop() {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if sr.ticker != nil {
		sr.ticker.Stop()
		close(sr.stop)
		sr.wg.Wait()
		sr.ticker = nil
		sr.Log.Info().Msg("session reaper stopped")
	}
}

func (sr *SessionReaper) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer sr.wg.Done()

	for {
		select {
		case <-ticker.C:
			sr.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow sweeps once and returns how many sessions were reaped.
func (sr *SessionReaper) RunNow() int {
	now := time.Now()
	if sr.Now != nil {
		now = sr.Now()
	}
	cutoff := now.Add(-sr.IdleTTL)

	reaped := 0
	for _, id := range sr.Sessions.IdleSince(cutoff) {
		var billNo string
		ok := sr.Sessions.Expire(id, cutoff, func(s *cash.TenderSession) {
			billNo = s.BillNo()
			if !s.State().IsClosed() {
				_ = s.Abort()
			}
		})
		if ok {
			reaped++
			sr.Log.Info().Str("session_id", id).Str("bill_no", billNo).Msg("idle tender session aborted")
		}
	}
	return reaped
}
