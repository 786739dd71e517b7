// ABOUTME: Telegram intake adapter: converts bot API updates into normalized events
// ABOUTME: Also implements the outbound sender, mapping quick replies to keyboards

package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pasarbot/pasarbot/internal/flow"
)

// EventHandler consumes normalized inbound events
type EventHandler interface {
	Handle(ctx context.Context, ev flow.Event) error
}

// Options configures the Telegram bot adapter.
type Options struct {
	// UpdateTimeout is the long-polling timeout in seconds. Zero selects 30.
	UpdateTimeout int
}

// Bot bridges the Telegram Bot API and the dispatch gateway. Inbound updates
// become flow events; outbound replies become messages, with quick replies
// rendered as a one-time reply keyboard.
type Bot struct {
	api     *tgbotapi.BotAPI
	handler EventHandler
	logger  *slog.Logger
	timeout int
}

// New creates a Telegram adapter from a bot token.
func New(token string, handler EventHandler, logger *slog.Logger, opts Options) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.UpdateTimeout == 0 {
		opts.UpdateTimeout = 30
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	return &Bot{
		api:     api,
		handler: handler,
		logger:  logger.With("component", "telegram"),
		timeout: opts.UpdateTimeout,
	}, nil
}

// Run polls for updates until the context is cancelled. Each update is
// normalized and handed to the event handler; handler errors are logged, not
// fatal, so one bad event never stops intake.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("telegram intake started", "account", b.api.Self.UserName)

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.timeout
	updates := b.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("telegram intake stopped")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			ev, ok := b.normalize(update)
			if !ok {
				continue
			}
			if err := b.handler.Handle(ctx, ev); err != nil {
				b.logger.Error("event handling failed",
					"error", err,
					"user_id", ev.UserID)
			}
		}
	}
}

// normalize converts a Telegram update into a flow event. Text messages
// become text events; inline button presses become button events carrying the
// callback data as payload. Everything else is ignored.
func (b *Bot) normalize(update tgbotapi.Update) (flow.Event, bool) {
	eventID := strconv.Itoa(update.UpdateID)

	if update.CallbackQuery != nil {
		cb := update.CallbackQuery
		if cb.Message == nil {
			return flow.Event{}, false
		}
		// Ack so the client stops showing a spinner
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			b.logger.Debug("callback ack failed", "error", err)
		}
		return flow.Event{
			UserID:     strconv.FormatInt(cb.Message.Chat.ID, 10),
			Kind:       flow.EventButton,
			Payload:    cb.Data,
			EventID:    eventID,
			ReceivedAt: time.Now().UTC(),
		}, true
	}

	if update.Message != nil && update.Message.Text != "" {
		msg := update.Message
		return flow.Event{
			UserID:     strconv.FormatInt(msg.Chat.ID, 10),
			Kind:       flow.EventText,
			Payload:    msg.Text,
			EventID:    eventID,
			ReceivedAt: time.Now().UTC(),
		}, true
	}

	return flow.Event{}, false
}

// Send delivers a reply to the user. Quick replies are rendered as a
// one-time reply keyboard; without them any previous keyboard is removed.
func (b *Bot) Send(ctx context.Context, userID, text string, quickReplies []string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", userID, err)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if len(quickReplies) > 0 {
		rows := make([][]tgbotapi.KeyboardButton, 0, len(quickReplies))
		for _, qr := range quickReplies {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(qr)))
		}
		keyboard := tgbotapi.NewReplyKeyboard(rows...)
		keyboard.OneTimeKeyboard = true
		msg.ReplyMarkup = keyboard
	} else {
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("sending message to chat %d: %w", chatID, err)
	}
	return nil
}
