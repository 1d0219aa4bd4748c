package savings

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// rebalance moves funds between the spot wallet and Flexible Savings so the
// available balance matches the requirement. Caller must hold the guard.
//
// Repeated invocation with unchanged balances is a no-op after the first
// successful transfer: the transfer itself equalizes available and required,
// so the next delta rounds to zero.
//
// Every failure path here is terminal for this invocation: the asset is added
// to the failure set and the monitor retries later. Nothing is retried
// synchronously.
func (e *Evaluator) rebalance(ctx context.Context, asset string, precision int32, available, required decimal.Decimal) {
	delta := available.Sub(required).Round(precision)

	e.l.Info("rebalance decision",
		zap.String("asset", asset),
		zap.String("available", available.String()),
		zap.String("required", required.String()),
		zap.String("delta", delta.String()),
		zap.Int32("precision", precision))

	switch {
	case delta.IsPositive():
		e.subscribeSurplus(ctx, asset, delta)
	case delta.IsNegative():
		e.redeemShortfall(ctx, asset, delta.Abs())
	default:
		e.notifier.Enqueue(fmt.Sprintf("No rebalancing required for %s", asset), true)
	}
}

// subscribeSurplus moves surplus liquid balance into savings.
func (e *Evaluator) subscribeSurplus(ctx context.Context, asset string, amount decimal.Decimal) {
	purchasable, err := e.exchange.CanPurchase(ctx, asset)
	if err != nil {
		e.deferAsset(asset, "failed to check purchase eligibility", err)
		return
	}
	if !purchasable {
		e.deferAsset(asset, "savings product is not purchasable right now", nil)
		return
	}

	minPurchase, err := e.exchange.MinPurchaseAmount(ctx, asset)
	if err != nil {
		e.deferAsset(asset, "failed to get minimum purchase amount", err)
		return
	}
	if amount.LessThan(minPurchase) {
		// intentional skip, not a failure: the surplus stays liquid until
		// it grows past the product minimum
		e.l.Info("surplus below minimum purchase amount, skipping subscription",
			zap.String("asset", asset),
			zap.String("surplus", amount.String()),
			zap.String("min_purchase", minPurchase.String()))
		e.notifier.Enqueue(fmt.Sprintf("Surplus of %s %s is below the minimum purchase amount (%s), not subscribing",
			amount.String(), asset, minPurchase.String()), true)
		return
	}

	if e.cfg.DryRun {
		e.notifier.Enqueue(fmt.Sprintf("[dry run] Would move %s %s from spot to savings", amount.String(), asset), false)
		return
	}

	if err := e.exchange.Subscribe(ctx, asset, amount); err != nil {
		e.deferAsset(asset, "subscribe failed", err)
		return
	}

	e.l.Info("subscribed surplus to savings", zap.String("asset", asset), zap.String("amount", amount.String()))
	e.notifier.Enqueue(fmt.Sprintf("Moved %s %s from spot to savings", amount.String(), asset), false)
}

// redeemShortfall moves the shortfall back from savings, capped to what the
// savings pool actually holds.
func (e *Evaluator) redeemShortfall(ctx context.Context, asset string, amount decimal.Decimal) {
	redeemable, err := e.exchange.CanRedeem(ctx, asset)
	if err != nil {
		e.deferAsset(asset, "failed to check redeem eligibility", err)
		return
	}
	if !redeemable {
		e.deferAsset(asset, "savings product is not redeemable right now", nil)
		return
	}

	savings, err := e.exchange.SavingsAvailable(ctx, asset)
	if err != nil {
		e.deferAsset(asset, "failed to get savings balance", err)
		return
	}

	// partial coverage is notified but not treated as a failure: a failure
	// set entry would pass the eligibility recheck immediately and retry a
	// redemption that still cannot be covered, once a minute
	partial := savings.LessThan(amount)
	if partial {
		amount = savings
	}
	if !amount.IsPositive() {
		e.l.Warn("savings pool is empty, shortfall stays uncovered", zap.String("asset", asset))
		e.notifier.Enqueue(fmt.Sprintf("⚠️ %s savings pool is empty, shortfall cannot be covered", asset), false)
		return
	}

	if e.cfg.DryRun {
		e.notifier.Enqueue(fmt.Sprintf("[dry run] Would move %s %s from savings to spot", amount.String(), asset), false)
		return
	}

	if err := e.exchange.Redeem(ctx, asset, amount); err != nil {
		e.deferAsset(asset, "redeem failed", err)
		return
	}

	e.l.Info("redeemed shortfall from savings",
		zap.String("asset", asset),
		zap.String("amount", amount.String()),
		zap.Bool("partial", partial))
	e.notifier.Enqueue(fmt.Sprintf("Moved %s %s from savings to spot", amount.String(), asset), false)
	if partial {
		e.notifier.Enqueue(fmt.Sprintf("⚠️ %s savings only partially cover the next orders: redeemed everything available", asset), false)
	}
}

// deferAsset records a failed rebalance attempt for the recovery monitor.
func (e *Evaluator) deferAsset(asset, reason string, err error) {
	e.failures.add(asset)

	if err != nil {
		e.l.Error("rebalance failed, deferring asset to retry",
			zap.String("asset", asset), zap.String("reason", reason), zap.Error(err))
		e.notifier.Enqueue(fmt.Sprintf("Rebalancing %s failed (%s): %v. Will retry once available.", asset, reason, err), false)
		return
	}

	e.l.Warn("rebalance deferred", zap.String("asset", asset), zap.String("reason", reason))
	e.notifier.Enqueue(fmt.Sprintf("Rebalancing %s deferred: %s. Will retry once available.", asset, reason), false)
}
