package notifier

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/dynsavings/pkg/retrier"
	"go.uber.org/zap"
)

const (
	queueCapacity = 256
	// telegram flood control allows roughly one message per second per chat
	sendInterval = time.Second
)

type queuedMessage struct {
	id   string
	text string
}

// TelegramNotifier delivers messages to a Telegram chat through a single
// FIFO worker. Delivery is rate limited and retried; the queue drops new
// messages when full rather than blocking the rebalancing engine.
type TelegramNotifier struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	verbose bool
	queue   chan queuedMessage
	retr    *retrier.Retrier
	l       *zap.Logger
}

// NewTelegramNotifier creates a notifier for the given bot token and chat.
func NewTelegramNotifier(token string, chatID int64, verbose bool, l *zap.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot api")
	}

	return &TelegramNotifier{
		bot:     bot,
		chatID:  chatID,
		verbose: verbose,
		queue:   make(chan queuedMessage, queueCapacity),
		retr:    retrier.New(retrier.WithMaxRetries(3)),
		l:       l,
	}, nil
}

// Enqueue queues a message for delivery. Verbose messages are dropped unless
// verbose mode is enabled.
func (n *TelegramNotifier) Enqueue(message string, verbose bool) {
	if verbose && !n.verbose {
		return
	}

	msg := queuedMessage{id: uuid.New().String(), text: message}
	select {
	case n.queue <- msg:
		n.l.Debug("notification queued", zap.String("id", msg.id))
	default:
		n.l.Warn("notification queue full, dropping message", zap.String("id", msg.id))
	}
}

// Run drains the queue until ctx is cancelled.
func (n *TelegramNotifier) Run(ctx context.Context) error {
	ticker := time.NewTicker(sendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-n.queue:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}

			err := n.retr.Do(ctx, func(ctx context.Context) error {
				return n.send(msg.text)
			})
			if err != nil {
				n.l.Error("failed to deliver notification", zap.String("id", msg.id), zap.Error(err))
			}
		}
	}
}

func (n *TelegramNotifier) send(text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := n.bot.Send(msg); err != nil {
		return errors.Wrap(err, "failed to send telegram message")
	}

	return nil
}
