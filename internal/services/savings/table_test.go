package savings

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAssetTable(t *testing.T) {
	table := newAssetTable()

	table.upsert("BTCUSDT", decimal.NewFromInt(10), "USDT")
	table.upsert("ETHUSDT", decimal.NewFromInt(10), "USDT")
	table.upsert("BNBUSDT", decimal.NewFromInt(30), "USDT")
	table.upsert("ETHBTC", decimal.NewFromInt(5), "BTC")

	require.True(t, table.sum("USDT").Equal(decimal.NewFromInt(50)))
	require.True(t, table.max("USDT").Equal(decimal.NewFromInt(30)))
	require.True(t, table.sum("BTC").Equal(decimal.NewFromInt(5)))

	// upsert replaces, never accumulates
	table.upsert("BTCUSDT", decimal.NewFromInt(15), "USDT")
	require.True(t, table.sum("USDT").Equal(decimal.NewFromInt(55)))

	table.dropQuoteAsset("USDT")
	require.True(t, table.sum("USDT").IsZero())
	require.True(t, table.max("USDT").IsZero())
	require.True(t, table.sum("BTC").Equal(decimal.NewFromInt(5)))
}

func TestFailureSet(t *testing.T) {
	failures := newFailureSet()
	require.Empty(t, failures.members())

	failures.add("USDT")
	failures.add("BTC")
	failures.add("USDT")
	require.Equal(t, []string{"BTC", "USDT"}, failures.members())

	failures.clear()
	require.Empty(t, failures.members())
}
