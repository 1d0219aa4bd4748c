// Package savings implements the rebalancing engine that keeps idle quote
// assets earning interest in Flexible Savings while guaranteeing enough
// liquid balance to fund the DCA strategy's upcoming orders.
package savings

import (
	"github.com/shopspring/decimal"
)

// row is one asset table entry: the latest next-order projection of a symbol.
type row struct {
	nextCost   decimal.Decimal
	quoteAsset string
}

// assetTable maps trading-pair symbol to its latest next-order projection.
// Access is serialized by the evaluator's guard; the table itself carries
// no lock.
type assetTable struct {
	rows map[string]row
}

func newAssetTable() *assetTable {
	return &assetTable{rows: make(map[string]row)}
}

func (t *assetTable) upsert(symbol string, nextCost decimal.Decimal, quoteAsset string) {
	t.rows[symbol] = row{nextCost: nextCost, quoteAsset: quoteAsset}
}

// dropQuoteAsset removes every row of a quote asset. Called right before a
// full recomputation so the table never mixes stale and fresh projections.
func (t *assetTable) dropQuoteAsset(quoteAsset string) {
	for symbol, r := range t.rows {
		if r.quoteAsset == quoteAsset {
			delete(t.rows, symbol)
		}
	}
}

func (t *assetTable) sum(quoteAsset string) decimal.Decimal {
	total := decimal.Zero
	for _, r := range t.rows {
		if r.quoteAsset == quoteAsset {
			total = total.Add(r.nextCost)
		}
	}

	return total
}

func (t *assetTable) max(quoteAsset string) decimal.Decimal {
	largest := decimal.Zero
	for _, r := range t.rows {
		if r.quoteAsset == quoteAsset && r.nextCost.GreaterThan(largest) {
			largest = r.nextCost
		}
	}

	return largest
}

func (t *assetTable) snapshot() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(t.rows))
	for symbol, r := range t.rows {
		out[symbol] = r.nextCost
	}

	return out
}
