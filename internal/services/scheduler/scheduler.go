// Package scheduler runs the daily full-universe reevaluation.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/vadiminshakov/dynsavings/internal/services/notifier"
	"go.uber.org/zap"
)

type fullReevaluator interface {
	ReevaluateAll(ctx context.Context)
}

// RebalanceScheduler fires one full reevaluation per day at a fixed UTC time.
// The daily run is the only path that sweeps surplus into savings, so it
// doubles as the self-healing pass for anything event processing missed.
type RebalanceScheduler struct {
	cron      *cron.Cron
	evaluator fullReevaluator
	notifier  notifier.Notifier
	entryID   cron.EntryID
	l         *zap.Logger
}

func NewRebalanceScheduler(evaluator fullReevaluator, n notifier.Notifier, l *zap.Logger) *RebalanceScheduler {
	return &RebalanceScheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		evaluator: evaluator,
		notifier:  n,
		l:         l,
	}
}

// Schedule registers the daily job at hour:minute UTC and starts the timer.
func (s *RebalanceScheduler) Schedule(ctx context.Context, hour, minute int) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return errors.Errorf("invalid rebalance time %02d:%02d", hour, minute)
	}

	id, err := s.cron.AddFunc(fmt.Sprintf("%d %d * * *", minute, hour), func() {
		s.l.Info("daily rebalance triggered")
		s.notifier.Enqueue("Starting scheduled daily rebalance", true)
		s.evaluator.ReevaluateAll(ctx)
		s.notifier.Enqueue(s.NextRunInfo(), true)
	})
	if err != nil {
		return errors.Wrap(err, "failed to schedule daily rebalance")
	}
	s.entryID = id
	s.cron.Start()

	s.l.Info("daily rebalance scheduled",
		zap.Int("hour_utc", hour),
		zap.Int("minute_utc", minute))

	return nil
}

// Stop halts the timer and waits for a running job to finish.
func (s *RebalanceScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// NextRunInfo reports when the next daily rebalance fires.
func (s *RebalanceScheduler) NextRunInfo() string {
	next := s.cron.Entry(s.entryID).Next
	if next.IsZero() {
		return "No daily rebalance scheduled"
	}

	return fmt.Sprintf("Next daily rebalance at %s (in %s)",
		next.Format("2006-01-02 15:04 MST"), time.Until(next).Round(time.Minute))
}
