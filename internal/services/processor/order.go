// Package processor turns user-data stream events into rebalancing triggers
// and notifications.
package processor

import (
	"context"
	"fmt"
	"regexp"

	"github.com/vadiminshakov/dynsavings/internal/domain"
	"github.com/vadiminshakov/dynsavings/internal/services/notifier"
	"go.uber.org/zap"
)

type symbolReevaluator interface {
	ReevaluateSymbol(ctx context.Context, symbol string, event *domain.Order)
}

// OrderProcessor reacts to execution reports. Only orders placed by the DCA
// strategy (matched by client order ID) are considered; a new BUY order means
// the deal advanced and its quote asset must be reevaluated.
type OrderProcessor struct {
	orderIDPattern *regexp.Regexp
	evaluator      symbolReevaluator
	notifier       notifier.Notifier
	l              *zap.Logger
}

func NewOrderProcessor(orderIDPattern *regexp.Regexp, evaluator symbolReevaluator, n notifier.Notifier, l *zap.Logger) *OrderProcessor {
	return &OrderProcessor{
		orderIDPattern: orderIDPattern,
		evaluator:      evaluator,
		notifier:       n,
		l:              l,
	}
}

// Process dispatches a single execution report.
func (p *OrderProcessor) Process(ctx context.Context, order domain.Order) {
	if !p.orderIDPattern.MatchString(order.ClientID) {
		p.l.Info("ignoring order outside the DCA strategy",
			zap.String("symbol", order.Symbol),
			zap.String("client_id", order.ClientID))
		p.notifier.Enqueue("Order outside DCA strategy received:\n\n"+p.describe(order), true)
		return
	}

	p.l.Info("processing order update",
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("status", string(order.Status)),
		zap.String("client_id", order.ClientID))

	switch {
	case order.IsBuy() && order.IsNew():
		p.notifier.Enqueue("New BUY order received:\n\n"+p.describe(order), false)
		p.evaluator.ReevaluateSymbol(ctx, order.Symbol, &order)
	case order.IsBuy():
		p.notifier.Enqueue(fmt.Sprintf(
			"Order status must be NEW to trigger reevaluation, got %s:\n\n%s",
			order.Status, p.describe(order)), true)
	case order.IsSell() && order.IsFilled():
		p.notifier.Enqueue("Take Profit Hit 💰\n\n"+p.describe(order), false)
	default:
		p.notifier.Enqueue("SELL order update received:\n\n"+p.describe(order), true)
	}
}

func (p *OrderProcessor) describe(order domain.Order) string {
	return fmt.Sprintf(
		"Symbol: %s\nSide: %s\nQuantity: %s\nPrice: %s %s\nTotal: %s %s\nStatus: %s\nOrder ID: %s",
		order.Symbol,
		order.Side,
		order.Quantity.String(),
		order.Price.String(), order.QuoteAsset,
		order.QuoteNotional().String(), order.QuoteAsset,
		order.Status,
		order.ClientID)
}
