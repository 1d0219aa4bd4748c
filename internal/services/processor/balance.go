package processor

import (
	"context"

	"github.com/vadiminshakov/dynsavings/internal/domain"
	"go.uber.org/zap"
)

type savingsReporter interface {
	ActiveQuoteAssets(ctx context.Context) ([]string, error)
	SavingsSummary(ctx context.Context, asset string)
}

// BalanceProcessor reacts to wallet balance changes. Changes to a quote asset
// of an active DCA symbol produce a savings summary notification, everything
// else is noise (dust conversions, airdrops, base-asset fills).
type BalanceProcessor struct {
	reporter savingsReporter
	l        *zap.Logger
}

func NewBalanceProcessor(reporter savingsReporter, l *zap.Logger) *BalanceProcessor {
	return &BalanceProcessor{reporter: reporter, l: l}
}

func (p *BalanceProcessor) Process(ctx context.Context, update domain.BalanceUpdate) {
	quoteAssets, err := p.reporter.ActiveQuoteAssets(ctx)
	if err != nil {
		p.l.Error("failed to resolve active quote assets, dropping balance update",
			zap.String("asset", update.Asset), zap.Error(err))
		return
	}

	for _, asset := range quoteAssets {
		if asset == update.Asset {
			p.l.Info("quote asset balance changed",
				zap.String("asset", update.Asset),
				zap.String("delta", update.Delta.String()))
			p.reporter.SavingsSummary(ctx, update.Asset)
			return
		}
	}

	p.l.Info("ignoring balance update for inactive asset", zap.String("asset", update.Asset))
}
