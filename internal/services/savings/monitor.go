package savings

import (
	"context"
	"time"

	"github.com/vadiminshakov/dynsavings/internal/services/notifier"
	"go.uber.org/zap"
)

// defaultMonitorInterval is how often failed assets are rechecked. The
// exchange closes savings subscription and redemption daily between 23:50
// and 00:10 UTC, so a one-minute poll recovers shortly after the window.
const defaultMonitorInterval = time.Minute

type eligibilityChecker interface {
	CanPurchase(ctx context.Context, asset string) (bool, error)
	CanRedeem(ctx context.Context, asset string) (bool, error)
}

// FailureMonitor watches the evaluator's failure set and retries once every
// member is purchasable and redeemable again. Recovery is all-or-nothing:
// the retry is a full-universe reevaluation that recomputes every quote
// asset at once, so clearing a partial set would rebalance assets that are
// still blocked.
type FailureMonitor struct {
	evaluator *Evaluator
	exchange  eligibilityChecker
	notifier  notifier.Notifier
	interval  time.Duration
	l         *zap.Logger
}

// NewFailureMonitor creates a monitor polling at the default interval.
func NewFailureMonitor(evaluator *Evaluator, exchange eligibilityChecker, n notifier.Notifier, l *zap.Logger) *FailureMonitor {
	return &FailureMonitor{
		evaluator: evaluator,
		exchange:  exchange,
		notifier:  n,
		interval:  defaultMonitorInterval,
		l:         l,
	}
}

// Run polls the failure set until ctx is cancelled.
func (m *FailureMonitor) Run(ctx context.Context) error {
	m.l.Info("failure monitoring started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *FailureMonitor) tick(ctx context.Context) {
	failed := m.evaluator.FailedAssets()
	if len(failed) == 0 {
		return
	}

	for _, asset := range failed {
		if !m.eligible(ctx, asset) {
			m.l.Warn("failed asset still not available for purchase and redemption, continuing to monitor",
				zap.String("asset", asset))
			return
		}
		m.l.Info("failed asset is available for purchase and redemption again", zap.String("asset", asset))
	}

	m.l.Info("all failed assets available again, clearing failures and rebalancing all symbols",
		zap.Strings("assets", failed))
	m.notifier.Enqueue("Starting retry...", true)
	m.evaluator.ClearFailures()
	m.evaluator.ReevaluateAll(ctx)
}

func (m *FailureMonitor) eligible(ctx context.Context, asset string) bool {
	purchasable, err := m.exchange.CanPurchase(ctx, asset)
	if err != nil {
		m.l.Warn("failed to check purchase eligibility", zap.String("asset", asset), zap.Error(err))
		return false
	}
	redeemable, err := m.exchange.CanRedeem(ctx, asset)
	if err != nil {
		m.l.Warn("failed to check redeem eligibility", zap.String("asset", asset), zap.Error(err))
		return false
	}

	return purchasable && redeemable
}
