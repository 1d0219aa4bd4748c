package internal

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/dynsavings/config"
	"github.com/vadiminshakov/dynsavings/internal/clients"
	"github.com/vadiminshakov/dynsavings/internal/services/notifier"
	"github.com/vadiminshakov/dynsavings/internal/services/precision"
	"github.com/vadiminshakov/dynsavings/internal/services/processor"
	"github.com/vadiminshakov/dynsavings/internal/services/savings"
	"github.com/vadiminshakov/dynsavings/internal/services/scheduler"
	"github.com/vadiminshakov/dynsavings/internal/services/stream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SavingsBot keeps idle quote-asset capital earning interest in Flexible
// Savings while guaranteeing the DCA bot always has enough liquid balance for
// its next safety orders.
type SavingsBot struct {
	cfg       config.Config
	notifier  *notifier.TelegramNotifier
	evaluator *savings.Evaluator
	monitor   *savings.FailureMonitor
	scheduler *scheduler.RebalanceScheduler
	stream    *stream.Reader
	l         *zap.Logger
}

// NewSavingsBot wires the full service graph around a single Binance client.
func NewSavingsBot(cfg config.Config, l *zap.Logger) (*SavingsBot, error) {
	client := clients.NewBinanceClient(cfg.BinanceAPIKey, cfg.BinanceSecretKey)

	tg, err := notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, cfg.TelegramVerbose, l)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram notifier")
	}

	precisionCalc := precision.NewCalculator(client, cfg.ReferenceAsset, l)

	evaluator := savings.NewEvaluator(savings.Config{
		OrderIDPattern:  cfg.OrderIDPattern,
		VolumeScale:     cfg.VolumeScale,
		QuoteCoverage:   cfg.QuoteCoverage,
		ExcludedSymbols: cfg.ExcludedSymbols,
		DryRun:          cfg.DryRun,
	}, client, precisionCalc, tg, l)

	orderProc := processor.NewOrderProcessor(cfg.OrderIDPattern, evaluator, tg, l)
	balanceProc := processor.NewBalanceProcessor(evaluator, l)

	return &SavingsBot{
		cfg:       cfg,
		notifier:  tg,
		evaluator: evaluator,
		monitor:   savings.NewFailureMonitor(evaluator, client, tg, l),
		scheduler: scheduler.NewRebalanceScheduler(evaluator, tg, l),
		stream:    stream.NewReader(client, orderProc, balanceProc, l),
		l:         l,
	}, nil
}

// Run starts every long-lived loop and blocks until the context is canceled
// or one of them fails.
func (b *SavingsBot) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return b.notifier.Run(ctx) })
	g.Go(func() error { return b.monitor.Run(ctx) })
	g.Go(func() error { return b.stream.Run(ctx) })

	if err := b.scheduler.Schedule(ctx, b.cfg.RebalanceHourUTC, b.cfg.RebalanceMinuteUTC); err != nil {
		return errors.Wrap(err, "failed to start daily rebalance scheduler")
	}
	defer b.scheduler.Stop()

	b.l.Info("savings bot started",
		zap.Bool("dry_run", b.cfg.DryRun),
		zap.String("volume_scale", b.cfg.VolumeScale.String()),
		zap.String("quote_coverage", b.cfg.QuoteCoverage.String()))
	b.notifier.Enqueue("Dynamic savings bot started 🚀", false)
	b.notifier.Enqueue(b.scheduler.NextRunInfo(), true)

	// a full pass on startup so funds locked during downtime are reconciled
	b.evaluator.ReevaluateAll(ctx)

	return g.Wait()
}
