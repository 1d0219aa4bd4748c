// Package precision derives a decimal rounding precision for an asset from
// the magnitude of its price in the bot's reference currency.
package precision

import (
	"context"
	"math"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// basePrecision is appropriate for assets priced near the reference currency.
const basePrecision = 2

type pricer interface {
	SymbolPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Calculator computes per-asset rounding precision and memoizes the result
// for the process lifetime. Cache entries are advisory: the underlying price
// can drift, but a stale precision only shifts rounding, never correctness.
type Calculator struct {
	pricer         pricer
	referenceAsset string
	l              *zap.Logger

	mu    sync.Mutex
	cache map[string]int32
}

// NewCalculator creates a Calculator. The reference asset's own price is
// taken as 1.0 without a market-data round-trip.
func NewCalculator(pricer pricer, referenceAsset string, l *zap.Logger) *Calculator {
	return &Calculator{
		pricer:         pricer,
		referenceAsset: referenceAsset,
		l:              l,
		cache:          make(map[string]int32),
	}
}

// Precision returns the number of decimal places to round amounts of the
// asset to: max(2 + floor(log10(|price|)), 0). Defaults to 2 when the price
// cannot be resolved.
func (c *Calculator) Precision(ctx context.Context, asset string) int32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.cache[asset]; ok {
		return p
	}

	p := c.calculate(ctx, asset)
	c.cache[asset] = p
	c.l.Info("calculated asset precision", zap.String("asset", asset), zap.Int32("precision", p))

	return p
}

func (c *Calculator) calculate(ctx context.Context, asset string) int32 {
	price := 1.0
	if asset != c.referenceAsset {
		avg, err := c.pricer.SymbolPrice(ctx, asset+c.referenceAsset)
		if err != nil {
			c.l.Warn("failed to get price for precision calculation, defaulting to 2 DP",
				zap.String("asset", asset), zap.Error(err))
			return basePrecision
		}
		price = avg.InexactFloat64()
	}

	if price == 0 {
		c.l.Warn("zero price for precision calculation, defaulting to 2 DP", zap.String("asset", asset))
		return basePrecision
	}

	exponents := int32(math.Floor(math.Log10(math.Abs(price))))
	p := basePrecision + exponents
	if p < 0 {
		p = 0
	}

	return p
}
