package domain

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrNoOrders is returned when a symbol's order history contains no BUY
// orders in status NEW or FILLED, so no deal can be reconstructed.
var ErrNoOrders = errors.New("no orders found for symbol")

// CurrentDeal isolates the most recent deal from a symbol's raw order
// history: BUY orders in status NEW or FILLED that share the deal identifier
// of the newest such order. The result is ordered newest first.
//
// An optional event order covers the case where the exchange's order history
// fetch lags a just-placed order: it is appended before sorting when its deal
// identifier matches the head's and its client ID is absent from the fetch.
func CurrentDeal(history []Order, event *Order) ([]Order, error) {
	orders := make([]Order, 0, len(history)+1)
	for _, o := range history {
		if o.IsBuy() && o.IsNewOrFilled() {
			orders = append(orders, o)
		}
	}
	if len(orders) == 0 {
		return nil, ErrNoOrders
	}

	sortNewestFirst(orders)
	dealID := orders[0].DealID()

	if event != nil && event.IsBuy() && event.IsNewOrFilled() &&
		event.DealID() == dealID && !containsClientID(orders, event.ClientID) {
		orders = append(orders, *event)
		sortNewestFirst(orders)
	}

	deal := make([]Order, 0, len(orders))
	for _, o := range orders {
		if o.DealID() != dealID {
			break
		}
		deal = append(deal, o)
	}

	return deal, nil
}

// IsSafetyOrderOpen reports whether the deal holds both a FILLED order (the
// base order or an executed safety order) and a NEW one (the open safety
// order waiting to fill).
func IsSafetyOrderOpen(deal []Order) bool {
	var hasNew, hasFilled bool
	for _, o := range deal {
		if o.IsNew() {
			hasNew = true
		}
		if o.IsFilled() {
			hasFilled = true
		}
	}

	return hasNew && hasFilled
}

// Projection is the projected cost of the next not-yet-placed safety order.
type Projection struct {
	Cost decimal.Decimal
	// Degraded is set when the deal had no NEW order and the most recent
	// order was used instead (the exchange fetch can momentarily miss it).
	Degraded bool
}

// ProjectNextOrder computes the quote-currency cost of the next safety order
// in an open deal:
//
//	cost = open_order_notional × volumeScale + open_order_price × stepSize
//
// The step-size term buffers price drift between projection and placement.
// Returns ok=false when the deal has no open safety order; callers treat
// that as zero cost or as a reason to defer.
func ProjectNextOrder(deal []Order, stepSize, volumeScale decimal.Decimal) (Projection, bool) {
	if len(deal) == 0 || !IsSafetyOrderOpen(deal) {
		return Projection{}, false
	}

	open, degraded := openSafetyOrder(deal)
	cost := open.QuoteNotional().Mul(volumeScale).Add(open.Price.Mul(stepSize))

	return Projection{Cost: cost, Degraded: degraded}, true
}

// openSafetyOrder picks the NEW order of the deal, falling back to the most
// recent order when none is present.
func openSafetyOrder(deal []Order) (Order, bool) {
	for _, o := range deal {
		if o.IsNew() {
			return o, false
		}
	}

	return deal[0], true
}

func sortNewestFirst(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Time.After(orders[j].Time)
	})
}

func containsClientID(orders []Order, clientID string) bool {
	for _, o := range orders {
		if o.ClientID == clientID {
			return true
		}
	}

	return false
}
