// Package jobs runs periodic maintenance for the submission server.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"alcyxob/present-coach/internal/observability/logging"
)

// StaleSweeper is the part of the submission service the sweeper drives.
type StaleSweeper interface {
	SweepStalePending(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Sweeper periodically deletes submissions that never got paid.
type Sweeper struct {
	c         *cron.Cron
	svc       StaleSweeper
	olderThan time.Duration
	timeout   time.Duration
}

// NewSweeper schedules svc.SweepStalePending on the cron spec schedule,
// e.g. "@every 1h" or "0 3 * * *".
func NewSweeper(svc StaleSweeper, schedule string, olderThan time.Duration) (*Sweeper, error) {
	s := &Sweeper{
		c:         cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		svc:       svc,
		olderThan: olderThan,
		timeout:   time.Minute,
	}
	if _, err := s.c.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule sweeper %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce performs a single sweep and returns the number of deleted
// submissions.
func (s *Sweeper) RunOnce(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	logger := logging.WithComponent("sweeper")
	n, err := s.svc.SweepStalePending(ctx, s.olderThan)
	if err != nil {
		logger.Error().Err(err).Msg("stale submission sweep failed")
		return 0
	}
	if n > 0 {
		logger.Info().Int64("deleted", n).Dur("olderThan", s.olderThan).Msg("stale submissions deleted")
	}
	return n
}

func (s *Sweeper) Start() { s.c.Start() }

// Stop stops scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() { <-s.c.Stop().Done() }

func (s *Sweeper) Entries() []cron.Entry { return s.c.Entries() }
