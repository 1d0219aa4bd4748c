package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceUpdate is a spot wallet balance change reported by the user-data
// stream (deposit, withdrawal or transfer, but not a trade fill).
type BalanceUpdate struct {
	Asset     string
	Delta     decimal.Decimal
	EventTime time.Time
	ClearTime time.Time
}
