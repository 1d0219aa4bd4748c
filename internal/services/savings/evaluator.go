package savings

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/dynsavings/internal/domain"
	"github.com/vadiminshakov/dynsavings/internal/services/notifier"
	"go.uber.org/zap"
)

// errNoProjection marks a symbol whose deal has no open safety order, so no
// next-order cost can be derived right now.
var errNoProjection = errors.New("no projection available")

// exchange is the client capability surface the evaluator consumes.
type exchange interface {
	ActiveSymbols(ctx context.Context, clientOrderIDPattern *regexp.Regexp) ([]string, error)
	QuoteAsset(ctx context.Context, symbol string) (string, error)
	StepSize(ctx context.Context, symbol string) (decimal.Decimal, error)
	OrdersBySymbol(ctx context.Context, symbol string) ([]domain.Order, error)
	AvailableBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	SavingsAvailable(ctx context.Context, asset string) (decimal.Decimal, error)
	SavingsAccruing(ctx context.Context, asset string) (decimal.Decimal, error)
	CanPurchase(ctx context.Context, asset string) (bool, error)
	CanRedeem(ctx context.Context, asset string) (bool, error)
	MinPurchaseAmount(ctx context.Context, asset string) (decimal.Decimal, error)
	Subscribe(ctx context.Context, asset string, amount decimal.Decimal) error
	Redeem(ctx context.Context, asset string, amount decimal.Decimal) error
}

type precisioner interface {
	Precision(ctx context.Context, asset string) int32
}

// Config holds the evaluator's strategy parameters.
type Config struct {
	// OrderIDPattern matches client order IDs placed by the DCA strategy.
	OrderIDPattern *regexp.Regexp
	// VolumeScale is the DCA safety-order volume multiplier (> 1.0).
	VolumeScale decimal.Decimal
	// QuoteCoverage is the fraction of total projected next-order cost that
	// must be held liquid at all times.
	QuoteCoverage decimal.Decimal
	// ExcludedSymbols are skipped during full-universe reevaluation.
	ExcludedSymbols []string
	// DryRun disables subscribe/redeem calls; intended transfers are only
	// logged and notified.
	DryRun bool
}

// Evaluator is the rebalancing engine. It reconstructs open deals from order
// history, projects next-order costs, aggregates them per quote asset and
// moves funds between the spot wallet and Flexible Savings.
//
// All entry points are serialized by a single guard: the asset table is
// read-modify-written across multiple exchange round-trips, so two
// interleaved reevaluations could double-count or lose projections.
type Evaluator struct {
	cfg       Config
	exchange  exchange
	precision precisioner
	notifier  notifier.Notifier
	l         *zap.Logger

	guard    sync.Mutex
	table    *assetTable
	failures *failureSet
}

// NewEvaluator creates the rebalancing engine.
func NewEvaluator(cfg Config, ex exchange, precision precisioner, n notifier.Notifier, l *zap.Logger) *Evaluator {
	return &Evaluator{
		cfg:       cfg,
		exchange:  ex,
		precision: precision,
		notifier:  n,
		l:         l,
		table:     newAssetTable(),
		failures:  newFailureSet(),
	}
}

// ReevaluateSymbol recomputes one symbol's projection and rebalances its
// quote asset if the liquid balance no longer covers the requirement.
// Triggers are fire-and-forget: errors are logged and notified, never
// returned.
func (e *Evaluator) ReevaluateSymbol(ctx context.Context, symbol string, event *domain.Order) {
	e.guard.Lock()
	defer e.guard.Unlock()

	if err := e.reevaluateSymbol(ctx, symbol, event); err != nil {
		e.l.Error("symbol reevaluation failed", zap.String("symbol", symbol), zap.Error(err))
		e.notifier.Enqueue(fmt.Sprintf("Failed to reevaluate %s: %v", symbol, err), false)
	}
}

// ReevaluateAll recomputes every active symbol's projection from scratch and
// rebalances each quote asset unconditionally. Quote assets that cannot be
// fully projected are deferred to the failure monitor.
func (e *Evaluator) ReevaluateAll(ctx context.Context) {
	e.guard.Lock()
	defer e.guard.Unlock()

	if err := e.reevaluateAll(ctx); err != nil {
		e.l.Error("full reevaluation failed", zap.Error(err))
		e.notifier.Enqueue(fmt.Sprintf("Failed to reevaluate all symbols: %v", err), false)
	}
}

// FailedAssets returns quote assets awaiting retry.
func (e *Evaluator) FailedAssets() []string {
	return e.failures.members()
}

// ClearFailures drops the whole failure set. Called by the monitor right
// before a retry once every member is purchasable and redeemable again.
func (e *Evaluator) ClearFailures() {
	e.failures.clear()
}

// ActiveQuoteAssets resolves the distinct quote assets of symbols currently
// traded by the DCA strategy.
func (e *Evaluator) ActiveQuoteAssets(ctx context.Context) ([]string, error) {
	symbols, err := e.exchange.ActiveSymbols(ctx, e.cfg.OrderIDPattern)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve active symbols")
	}

	seen := make(map[string]struct{})
	var assets []string
	for _, symbol := range symbols {
		quote, err := e.exchange.QuoteAsset(ctx, symbol)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to resolve quote asset for %s", symbol)
		}
		if _, ok := seen[quote]; ok {
			continue
		}
		seen[quote] = struct{}{}
		assets = append(assets, quote)
	}
	sort.Strings(assets)

	return assets, nil
}

// SavingsSummary sends a notification with the asset's spot, redeemable and
// interest-accruing balances.
func (e *Evaluator) SavingsSummary(ctx context.Context, asset string) {
	spot, err := e.exchange.AvailableBalance(ctx, asset)
	if err != nil {
		e.l.Error("failed to get spot balance for summary", zap.String("asset", asset), zap.Error(err))
		return
	}
	redeemable, err := e.exchange.SavingsAvailable(ctx, asset)
	if err != nil {
		e.l.Error("failed to get savings balance for summary", zap.String("asset", asset), zap.Error(err))
		return
	}
	accruing, err := e.exchange.SavingsAccruing(ctx, asset)
	if err != nil {
		e.l.Error("failed to get accruing savings for summary", zap.String("asset", asset), zap.Error(err))
		return
	}

	e.notifier.Enqueue(fmt.Sprintf(
		"💰 %s savings summary\n\nSpot available: %s\nSavings redeemable: %s\nAccruing interest: %s",
		asset, spot.String(), redeemable.String(), accruing.String()), false)
}

func (e *Evaluator) reevaluateSymbol(ctx context.Context, symbol string, event *domain.Order) error {
	quoteAsset, err := e.exchange.QuoteAsset(ctx, symbol)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve quote asset for %s", symbol)
	}

	cost, err := e.projectSymbol(ctx, symbol, event)
	if err != nil {
		if errors.Is(err, errNoProjection) {
			// nothing to fund for this symbol right now
			cost = decimal.Zero
		} else {
			return err
		}
	}

	e.table.upsert(symbol, cost, quoteAsset)

	required := e.requiredBalance(quoteAsset)
	available, err := e.exchange.AvailableBalance(ctx, quoteAsset)
	if err != nil {
		return errors.Wrapf(err, "failed to get %s balance", quoteAsset)
	}

	if available.GreaterThanOrEqual(required) {
		e.l.Info("no rebalance needed",
			zap.String("symbol", symbol),
			zap.String("quote_asset", quoteAsset),
			zap.String("available", available.String()),
			zap.String("required", required.String()))
		e.notifier.Enqueue(fmt.Sprintf("No rebalancing required for %s: %s available, %s required",
			quoteAsset, available.String(), required.String()), true)
		return nil
	}

	e.rebalance(ctx, quoteAsset, e.precision.Precision(ctx, quoteAsset), available, required)

	return nil
}

func (e *Evaluator) reevaluateAll(ctx context.Context) error {
	e.notifier.Enqueue("Reevaluating all symbols...", true)

	symbols, err := e.exchange.ActiveSymbols(ctx, e.cfg.OrderIDPattern)
	if err != nil {
		return errors.Wrap(err, "failed to resolve active symbols")
	}
	symbols = e.withoutExcluded(symbols)
	if len(symbols) == 0 {
		e.notifier.Enqueue("No active symbols match the DCA order naming convention", true)
		return nil
	}
	e.notifier.Enqueue("Active currency pairs:\n\n"+strings.Join(symbols, "\n"), true)

	groups := make(map[string][]string)
	for _, symbol := range symbols {
		quote, err := e.exchange.QuoteAsset(ctx, symbol)
		if err != nil {
			return errors.Wrapf(err, "failed to resolve quote asset for %s", symbol)
		}
		groups[quote] = append(groups[quote], symbol)
	}

	quotes := make([]string, 0, len(groups))
	for quote := range groups {
		quotes = append(quotes, quote)
	}
	sort.Strings(quotes)
	e.notifier.Enqueue("Quote assets to rebalance: "+strings.Join(quotes, ", "), true)

	for _, quote := range quotes {
		if err := e.reevaluateQuoteAsset(ctx, quote, groups[quote]); err != nil {
			// rebalancing on a partial or unknown requirement is not safe;
			// defer the whole quote asset to the failure monitor
			e.l.Error("quote asset reevaluation failed, deferring to retry",
				zap.String("quote_asset", quote), zap.Error(err))
			e.failures.add(quote)
			e.notifier.Enqueue(fmt.Sprintf("Rebalancing %s deferred, will retry: %v", quote, err), false)
		}
	}

	return nil
}

func (e *Evaluator) reevaluateQuoteAsset(ctx context.Context, quoteAsset string, symbols []string) error {
	e.l.Info("rebalancing quote asset",
		zap.String("quote_asset", quoteAsset),
		zap.Strings("symbols", symbols))

	e.table.dropQuoteAsset(quoteAsset)
	for _, symbol := range symbols {
		cost, err := e.projectSymbol(ctx, symbol, nil)
		if err != nil {
			return errors.Wrapf(err, "failed to project next order for %s", symbol)
		}
		e.table.upsert(symbol, cost, quoteAsset)
	}

	required := e.requiredBalance(quoteAsset)
	available, err := e.exchange.AvailableBalance(ctx, quoteAsset)
	if err != nil {
		return errors.Wrapf(err, "failed to get %s balance", quoteAsset)
	}

	e.rebalance(ctx, quoteAsset, e.precision.Precision(ctx, quoteAsset), available, required)

	return nil
}

// projectSymbol reconstructs the symbol's current deal and projects the cost
// of its next safety order. Returns errNoProjection when the deal has no
// open safety order.
func (e *Evaluator) projectSymbol(ctx context.Context, symbol string, event *domain.Order) (decimal.Decimal, error) {
	history, err := e.exchange.OrdersBySymbol(ctx, symbol)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to fetch order history for %s", symbol)
	}

	deal, err := domain.CurrentDeal(history, event)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to reconstruct deal for %s", symbol)
	}

	stepSize, err := e.exchange.StepSize(ctx, symbol)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to get step size for %s", symbol)
	}

	proj, ok := domain.ProjectNextOrder(deal, stepSize, e.cfg.VolumeScale)
	if !ok {
		e.l.Info("deal has no open safety order, nothing to project", zap.String("symbol", symbol))
		return decimal.Zero, errors.Wrapf(errNoProjection, "symbol %s", symbol)
	}
	if proj.Degraded {
		e.l.Warn("open deal is missing its NEW order, projected from most recent order instead",
			zap.String("symbol", symbol))
	}

	e.l.Info("projected next safety order cost",
		zap.String("symbol", symbol),
		zap.String("cost", proj.Cost.String()))

	return proj.Cost, nil
}

// requiredBalance derives the minimum liquid balance for a quote asset:
// max(sum of projections × coverage, largest single projection). Holding
// full coverage of every next order is capital-inefficient since orders fire
// sequentially, but the buffer must never drop below the largest one.
func (e *Evaluator) requiredBalance(quoteAsset string) decimal.Decimal {
	covered := e.table.sum(quoteAsset).Mul(e.cfg.QuoteCoverage)
	if largest := e.table.max(quoteAsset); largest.GreaterThan(covered) {
		return largest
	}

	return covered
}

func (e *Evaluator) withoutExcluded(symbols []string) []string {
	if len(e.cfg.ExcludedSymbols) == 0 {
		return symbols
	}

	excluded := make(map[string]struct{}, len(e.cfg.ExcludedSymbols))
	for _, s := range e.cfg.ExcludedSymbols {
		excluded[s] = struct{}{}
	}

	out := symbols[:0]
	for _, s := range symbols {
		if _, ok := excluded[s]; !ok {
			out = append(out, s)
		}
	}

	return out
}
