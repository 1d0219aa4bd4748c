package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type evaluatorStub struct{}

func (evaluatorStub) ReevaluateAll(_ context.Context) {}

type notifierStub struct{}

func (notifierStub) Enqueue(_ string, _ bool) {}

func TestScheduleRejectsInvalidTime(t *testing.T) {
	s := NewRebalanceScheduler(evaluatorStub{}, notifierStub{}, zap.NewNop())

	require.Error(t, s.Schedule(context.Background(), 24, 0))
	require.Error(t, s.Schedule(context.Background(), 0, 60))
	require.Error(t, s.Schedule(context.Background(), -1, 30))
}

func TestScheduleRegistersDailyJob(t *testing.T) {
	s := NewRebalanceScheduler(evaluatorStub{}, notifierStub{}, zap.NewNop())

	require.NoError(t, s.Schedule(context.Background(), 3, 30))
	defer s.Stop()

	info := s.NextRunInfo()
	require.Contains(t, info, "Next daily rebalance at")
	require.Contains(t, info, "03:30")
}
