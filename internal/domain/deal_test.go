package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func buyOrder(clientID string, status OrderStatus, price, qty float64, ts time.Time) Order {
	return Order{
		Symbol:     "BTCUSDT",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
		Price:      decimal.NewFromFloat(price),
		Quantity:   decimal.NewFromFloat(qty),
		ClientID:   clientID,
		Status:     status,
		Side:       OrderSideBuy,
		Time:       ts,
	}
}

func TestOrderDealID(t *testing.T) {
	o := Order{ClientID: "deal_4815_42_2"}
	require.Equal(t, "42", o.DealID())

	o = Order{ClientID: "manual"}
	require.Equal(t, "", o.DealID())
}

func TestCurrentDeal(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("isolates most recent deal", func(t *testing.T) {
		history := []Order{
			buyOrder("deal_100_1", OrderStatusFilled, 50000, 0.001, base),
			buyOrder("deal_100_2", OrderStatusFilled, 49000, 0.001, base.Add(time.Hour)),
			buyOrder("deal_200_1", OrderStatusFilled, 48000, 0.001, base.Add(2*time.Hour)),
			buyOrder("deal_200_2", OrderStatusNew, 47000, 0.002, base.Add(3*time.Hour)),
		}

		deal, err := CurrentDeal(history, nil)
		require.NoError(t, err)
		require.Len(t, deal, 2)
		require.Equal(t, "deal_200_2", deal[0].ClientID)
		require.Equal(t, "deal_200_1", deal[1].ClientID)
	})

	t.Run("filters cancelled and sell orders", func(t *testing.T) {
		history := []Order{
			buyOrder("deal_300_1", OrderStatusFilled, 50000, 0.001, base),
			buyOrder("deal_300_2", OrderStatusCanceled, 49000, 0.001, base.Add(time.Hour)),
			{
				Symbol:   "BTCUSDT",
				ClientID: "deal_300_tp",
				Status:   OrderStatusNew,
				Side:     OrderSideSell,
				Time:     base.Add(2 * time.Hour),
			},
		}

		deal, err := CurrentDeal(history, nil)
		require.NoError(t, err)
		require.Len(t, deal, 1)
		require.Equal(t, "deal_300_1", deal[0].ClientID)
	})

	t.Run("appends lagging event order", func(t *testing.T) {
		history := []Order{
			buyOrder("deal_400_1", OrderStatusFilled, 50000, 0.001, base),
		}
		event := buyOrder("deal_400_2", OrderStatusNew, 49000, 0.001, base.Add(time.Hour))

		deal, err := CurrentDeal(history, &event)
		require.NoError(t, err)
		require.Len(t, deal, 2)
		require.Equal(t, "deal_400_2", deal[0].ClientID)
	})

	t.Run("does not duplicate event already in history", func(t *testing.T) {
		history := []Order{
			buyOrder("deal_400_1", OrderStatusFilled, 50000, 0.001, base),
			buyOrder("deal_400_2", OrderStatusNew, 49000, 0.001, base.Add(time.Hour)),
		}
		event := buyOrder("deal_400_2", OrderStatusNew, 49000, 0.001, base.Add(time.Hour))

		deal, err := CurrentDeal(history, &event)
		require.NoError(t, err)
		require.Len(t, deal, 2)
	})

	t.Run("ignores event from another deal", func(t *testing.T) {
		history := []Order{
			buyOrder("deal_500_1", OrderStatusFilled, 50000, 0.001, base.Add(time.Hour)),
		}
		event := buyOrder("deal_400_9", OrderStatusNew, 49000, 0.001, base)

		deal, err := CurrentDeal(history, &event)
		require.NoError(t, err)
		require.Len(t, deal, 1)
		require.Equal(t, "deal_500_1", deal[0].ClientID)
	})

	t.Run("empty history fails", func(t *testing.T) {
		_, err := CurrentDeal(nil, nil)
		require.ErrorIs(t, err, ErrNoOrders)
	})
}

func TestIsSafetyOrderOpen(t *testing.T) {
	base := time.Now()

	tests := []struct {
		name     string
		statuses []OrderStatus
		expected bool
	}{
		{"filled and new", []OrderStatus{OrderStatusFilled, OrderStatusNew}, true},
		{"multiple filled, one new", []OrderStatus{OrderStatusFilled, OrderStatusFilled, OrderStatusNew}, true},
		{"only filled", []OrderStatus{OrderStatusFilled, OrderStatusFilled}, false},
		{"only new", []OrderStatus{OrderStatusNew}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var deal []Order
			for i, st := range tt.statuses {
				deal = append(deal, buyOrder("deal_1_1", st, 100, 1, base.Add(time.Duration(i)*time.Minute)))
			}
			require.Equal(t, tt.expected, IsSafetyOrderOpen(deal))
		})
	}
}

func TestProjectNextOrder(t *testing.T) {
	base := time.Now()

	t.Run("open deal", func(t *testing.T) {
		// open order notional 100.0, scale 1.05, price 50.0, step 0.01
		// => 100.0*1.05 + 50.0*0.01 = 105.5
		deal := []Order{
			buyOrder("deal_1_2", OrderStatusNew, 50, 2, base.Add(time.Hour)),
			buyOrder("deal_1_1", OrderStatusFilled, 55, 2, base),
		}

		proj, ok := ProjectNextOrder(deal, decimal.NewFromFloat(0.01), decimal.NewFromFloat(1.05))
		require.True(t, ok)
		require.False(t, proj.Degraded)
		require.True(t, proj.Cost.Equal(decimal.NewFromFloat(105.5)), "got %s", proj.Cost.String())
	})

	t.Run("no open safety order", func(t *testing.T) {
		deal := []Order{
			buyOrder("deal_1_1", OrderStatusFilled, 55, 2, base),
		}

		_, ok := ProjectNextOrder(deal, decimal.NewFromFloat(0.01), decimal.NewFromFloat(1.05))
		require.False(t, ok)
	})

	t.Run("empty deal", func(t *testing.T) {
		_, ok := ProjectNextOrder(nil, decimal.NewFromFloat(0.01), decimal.NewFromFloat(1.05))
		require.False(t, ok)
	})
}
