package savings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMonitorTickWaitsForAllAssets(t *testing.T) {
	ex := &exchangeMock{}
	e := newTestEvaluator(ex)
	e.failures.add("BTC")
	e.failures.add("USDT")

	ex.On("CanPurchase", mock.Anything, "BTC").Return(true, nil).Maybe()
	ex.On("CanRedeem", mock.Anything, "BTC").Return(true, nil).Maybe()
	ex.On("CanPurchase", mock.Anything, "USDT").Return(false, nil)
	ex.On("CanRedeem", mock.Anything, "USDT").Return(true, nil).Maybe()

	m := NewFailureMonitor(e, ex, &notifierStub{}, zap.NewNop())
	m.tick(context.Background())

	// one asset still blocked keeps the whole set untouched
	require.Equal(t, []string{"BTC", "USDT"}, e.FailedAssets())
	ex.AssertNotCalled(t, "ActiveSymbols", mock.Anything, mock.Anything)
}

func TestMonitorTickRetriesOnceAllEligible(t *testing.T) {
	ex := &exchangeMock{}
	e := newTestEvaluator(ex)
	e.failures.add("BTC")
	e.failures.add("USDT")

	ex.On("CanPurchase", mock.Anything, mock.Anything).Return(true, nil)
	ex.On("CanRedeem", mock.Anything, mock.Anything).Return(true, nil)
	ex.On("ActiveSymbols", mock.Anything, mock.Anything).Return([]string{}, nil)

	m := NewFailureMonitor(e, ex, &notifierStub{}, zap.NewNop())
	m.tick(context.Background())

	require.Empty(t, e.FailedAssets())
	ex.AssertNumberOfCalls(t, "ActiveSymbols", 1)
}

func TestMonitorTickNoopWithoutFailures(t *testing.T) {
	ex := &exchangeMock{}
	e := newTestEvaluator(ex)

	m := NewFailureMonitor(e, ex, &notifierStub{}, zap.NewNop())
	m.tick(context.Background())

	ex.AssertNotCalled(t, "CanPurchase", mock.Anything, mock.Anything)
	ex.AssertNotCalled(t, "ActiveSymbols", mock.Anything, mock.Anything)
}
