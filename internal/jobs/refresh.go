// Package jobs runs background maintenance on stored credentials
package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethanbaker/agentlink/pkg/utils"
	"github.com/robfig/cron/v3"
)

const (
	DefaultRefreshSchedule = "@every 15m"
	DefaultRefreshWindow   = 30 * time.Minute
)

// Refresher refreshes every credential expiring within window
type Refresher interface {
	RefreshExpiring(ctx context.Context, window time.Duration) (int, error)
}

// RefreshSweep periodically refreshes credentials before they expire
type RefreshSweep struct {
	refresher Refresher
	window    time.Duration
	timeout   time.Duration

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	// a sweep that is still running when the next one fires is skipped
	running sync.Mutex
}

// NewRefreshSweep schedules a sweep on REFRESH_SCHEDULE covering
// REFRESH_WINDOW_MINUTES. The sweep does not run until Start
func NewRefreshSweep(cfg *utils.Config, refresher Refresher) (*RefreshSweep, error) {
	ctx, cancel := context.WithCancel(context.Background())

	s := &RefreshSweep{
		refresher: refresher,
		window:    time.Duration(cfg.GetIntWithDefault("REFRESH_WINDOW_MINUTES", int(DefaultRefreshWindow/time.Minute))) * time.Minute,
		timeout:   5 * time.Minute,
		cron:      cron.New(),
		ctx:       ctx,
		cancel:    cancel,
	}

	schedule := cfg.GetWithDefault("REFRESH_SCHEDULE", DefaultRefreshSchedule)
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	return s, nil
}

// Window reports how far ahead the sweep looks
func (s *RefreshSweep) Window() time.Duration {
	return s.window
}

func (s *RefreshSweep) tick() {
	if !s.running.TryLock() {
		log.Printf("[REFRESH]: Previous sweep still running, skipping\n")
		return
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		log.Printf("[REFRESH]: %v\n", err)
	}
}

// RunOnce performs a single sweep
func (s *RefreshSweep) RunOnce(ctx context.Context) (int, error) {
	refreshed, err := s.refresher.RefreshExpiring(ctx, s.window)
	if refreshed > 0 {
		log.Printf("[REFRESH]: Refreshed %d credentials\n", refreshed)
	}
	if err != nil {
		return refreshed, fmt.Errorf("refresh sweep incomplete: %w", err)
	}
	return refreshed, nil
}

// Start begins the schedule
func (s *RefreshSweep) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *RefreshSweep) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
