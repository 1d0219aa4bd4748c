// Package domain defines core data structures used throughout the savings bot.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus exchange order status.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// OrderSide order direction.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Order is a single exchange order, built from an order-history fetch or a
// live execution report. Immutable once constructed.
type Order struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	// ClientID is the client-assigned order identifier. The DCA strategy
	// encodes its deal identifier into it as underscore-delimited tokens.
	ClientID string
	Status   OrderStatus
	Side     OrderSide
	Time     time.Time
}

// QuoteNotional returns the order value in the quote currency.
func (o *Order) QuoteNotional() decimal.Decimal {
	return o.Price.Mul(o.Quantity)
}

// DealID extracts the deal identifier from the client order ID: the
// second-to-last underscore-delimited token. Empty when the ID does not
// follow the DCA naming convention.
func (o *Order) DealID() string {
	tokens := strings.Split(o.ClientID, "_")
	if len(tokens) < 2 {
		return ""
	}
	return tokens[len(tokens)-2]
}

func (o *Order) IsNew() bool {
	return o.Status == OrderStatusNew
}

func (o *Order) IsFilled() bool {
	return o.Status == OrderStatusFilled
}

func (o *Order) IsNewOrFilled() bool {
	return o.IsNew() || o.IsFilled()
}

func (o *Order) IsBuy() bool {
	return o.Side == OrderSideBuy
}

func (o *Order) IsSell() bool {
	return o.Side == OrderSideSell
}

// String returns a human-readable representation.
func (o *Order) String() string {
	return fmt.Sprintf("%s %s %s@%s (%s, %s)", o.Symbol, o.Side, o.Quantity.String(), o.Price.String(), o.Status, o.ClientID)
}
