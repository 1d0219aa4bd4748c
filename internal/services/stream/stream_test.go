package stream

import (
	"context"
	"testing"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type clientStub struct{}

func (clientStub) StartUserStream(_ context.Context) (string, error) { return "key", nil }

func (clientStub) KeepaliveUserStream(_ context.Context, _ string) error { return nil }

func (clientStub) QuoteAsset(_ context.Context, _ string) (string, error) { return "USDT", nil }

func (clientStub) BaseAsset(_ context.Context, _ string) (string, error) { return "BTC", nil }

func TestMapOrder(t *testing.T) {
	r := NewReader(clientStub{}, nil, nil, zap.NewNop())

	order, err := r.mapOrder(context.Background(), binance.WsOrderUpdate{
		Symbol:        "BTCUSDT",
		ClientOrderId: "deal_BTCUSDT_101_so2",
		Side:          "BUY",
		Volume:        "0.005",
		Price:         "27150.10",
		Status:        "NEW",
		CreateTime:    1680350400000,
	})
	require.NoError(t, err)

	require.Equal(t, "BTCUSDT", order.Symbol)
	require.Equal(t, "BTC", order.BaseAsset)
	require.Equal(t, "USDT", order.QuoteAsset)
	require.Equal(t, "101", order.DealID())
	require.True(t, order.IsBuy())
	require.True(t, order.IsNew())
	require.True(t, order.QuoteNotional().Equal(decimal.RequireFromString("135.7505")))
}

func TestMapOrderRejectsMalformedPrice(t *testing.T) {
	r := NewReader(clientStub{}, nil, nil, zap.NewNop())

	_, err := r.mapOrder(context.Background(), binance.WsOrderUpdate{
		Symbol: "BTCUSDT",
		Price:  "not-a-price",
		Volume: "1",
	})
	require.Error(t, err)
}

func TestMapBalanceUpdate(t *testing.T) {
	r := NewReader(clientStub{}, nil, nil, zap.NewNop())

	update, err := r.mapBalanceUpdate(&binance.WsUserDataEvent{
		Event:           binance.UserDataEventTypeBalanceUpdate,
		Time:            1680350400000,
		TransactionTime: 1680350400123,
		BalanceUpdate: binance.WsBalanceUpdate{
			Asset:  "USDT",
			Change: "-12.5",
		},
	})
	require.NoError(t, err)

	require.Equal(t, "USDT", update.Asset)
	require.Equal(t, "-12.5", update.Delta.String())
	require.Equal(t, int64(1680350400000), update.EventTime.UnixMilli())
	require.Equal(t, int64(1680350400123), update.ClearTime.UnixMilli())
}
