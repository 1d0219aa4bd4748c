// Package stream consumes the Binance user-data websocket and feeds order and
// balance events to the processors.
package stream

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/dynsavings/internal/domain"
	"github.com/vadiminshakov/dynsavings/internal/services/processor"
	"github.com/vadiminshakov/dynsavings/pkg/retrier"
	"go.uber.org/zap"
)

const (
	// listen keys expire after 60 minutes without a keepalive
	keepaliveInterval   = 30 * time.Minute
	healthCheckInterval = 10 * time.Minute
	reconnectDelay      = 5 * time.Second

	eventBuffer = 64
)

type streamClient interface {
	StartUserStream(ctx context.Context) (string, error)
	KeepaliveUserStream(ctx context.Context, listenKey string) error
	QuoteAsset(ctx context.Context, symbol string) (string, error)
	BaseAsset(ctx context.Context, symbol string) (string, error)
}

// Reader owns the websocket connection lifecycle: listen-key issue and
// keepalive, reconnects, and dispatch of incoming events to the processors.
type Reader struct {
	client  streamClient
	orders  *processor.OrderProcessor
	balance *processor.BalanceProcessor
	retr    *retrier.Retrier
	l       *zap.Logger
}

func NewReader(client streamClient, orders *processor.OrderProcessor, balance *processor.BalanceProcessor, l *zap.Logger) *Reader {
	return &Reader{
		client:  client,
		orders:  orders,
		balance: balance,
		retr: retrier.New(
			retrier.WithInitialInterval(time.Second),
			retrier.WithMaxInterval(time.Minute),
			retrier.WithMaxRetries(5),
		),
		l: l,
	}
}

// Run connects and processes events until the context is canceled. A dropped
// connection is reconnected with a fresh listen key.
func (r *Reader) Run(ctx context.Context) error {
	for {
		if err := r.serve(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.l.Error("user-data stream failed, reconnecting", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// serve runs one websocket session to completion.
func (r *Reader) serve(ctx context.Context) error {
	listenKey, err := retrier.DoWithData(r.retr, ctx, func(ctx context.Context) (string, error) {
		return r.client.StartUserStream(ctx)
	})
	if err != nil {
		return errors.Wrap(err, "failed to obtain listen key")
	}

	events := make(chan *binance.WsUserDataEvent, eventBuffer)
	wsErrs := make(chan error, 1)

	doneC, stopC, err := binance.WsUserDataServe(listenKey,
		func(event *binance.WsUserDataEvent) {
			select {
			case events <- event:
			default:
				r.l.Warn("event buffer full, dropping user-data event",
					zap.String("event_type", string(event.Event)))
			}
		},
		func(err error) {
			select {
			case wsErrs <- err:
			default:
			}
		})
	if err != nil {
		return errors.Wrap(err, "failed to open user-data stream")
	}
	defer close(stopC)

	r.l.Info("user-data stream connected")

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()
	health := time.NewTicker(healthCheckInterval)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-doneC:
			return errors.New("user-data stream closed by server")
		case err := <-wsErrs:
			return errors.Wrap(err, "user-data stream error")
		case <-keepalive.C:
			if err := r.client.KeepaliveUserStream(ctx, listenKey); err != nil {
				return errors.Wrap(err, "failed to keep listen key alive")
			}
			r.l.Info("listen key refreshed")
		case <-health.C:
			r.l.Info("user-data stream healthy")
		case event := <-events:
			r.dispatch(ctx, event)
		}
	}
}

func (r *Reader) dispatch(ctx context.Context, event *binance.WsUserDataEvent) {
	switch event.Event {
	case binance.UserDataEventTypeExecutionReport:
		order, err := r.mapOrder(ctx, event.OrderUpdate)
		if err != nil {
			r.l.Error("failed to map execution report, skipping",
				zap.String("symbol", event.OrderUpdate.Symbol), zap.Error(err))
			return
		}
		r.orders.Process(ctx, order)
	case binance.UserDataEventTypeBalanceUpdate:
		update, err := r.mapBalanceUpdate(event)
		if err != nil {
			r.l.Error("failed to map balance update, skipping",
				zap.String("asset", event.BalanceUpdate.Asset), zap.Error(err))
			return
		}
		r.balance.Process(ctx, update)
	default:
		r.l.Debug("ignoring user-data event", zap.String("event_type", string(event.Event)))
	}
}

func (r *Reader) mapOrder(ctx context.Context, update binance.WsOrderUpdate) (domain.Order, error) {
	price, err := decimal.NewFromString(update.Price)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "failed to parse price")
	}
	quantity, err := decimal.NewFromString(update.Volume)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "failed to parse quantity")
	}
	baseAsset, err := r.client.BaseAsset(ctx, update.Symbol)
	if err != nil {
		return domain.Order{}, errors.Wrapf(err, "failed to resolve base asset for %s", update.Symbol)
	}
	quoteAsset, err := r.client.QuoteAsset(ctx, update.Symbol)
	if err != nil {
		return domain.Order{}, errors.Wrapf(err, "failed to resolve quote asset for %s", update.Symbol)
	}

	return domain.Order{
		Symbol:     update.Symbol,
		BaseAsset:  baseAsset,
		QuoteAsset: quoteAsset,
		Price:      price,
		Quantity:   quantity,
		ClientID:   update.ClientOrderId,
		Status:     domain.OrderStatus(update.Status),
		Side:       domain.OrderSide(update.Side),
		Time:       time.UnixMilli(update.CreateTime),
	}, nil
}

func (r *Reader) mapBalanceUpdate(event *binance.WsUserDataEvent) (domain.BalanceUpdate, error) {
	delta, err := decimal.NewFromString(event.BalanceUpdate.Change)
	if err != nil {
		return domain.BalanceUpdate{}, errors.Wrap(err, "failed to parse balance delta")
	}

	return domain.BalanceUpdate{
		Asset:     event.BalanceUpdate.Asset,
		Delta:     delta,
		EventTime: time.UnixMilli(event.Time),
		ClearTime: time.UnixMilli(event.TransactionTime),
	}, nil
}
