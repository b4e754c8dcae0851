// Package notification pushes trade and alert messages to external channels.
// Delivery is best effort; a failed send never affects the trading loop.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Notifier delivers messages and titled alerts to an external channel
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
	SendAlert(ctx context.Context, title, text string) error
}

// NoopNotifier discards every message. Used when no channel is configured.
type NoopNotifier struct{}

func (NoopNotifier) SendMessage(ctx context.Context, text string) error { return nil }

func (NoopNotifier) SendAlert(ctx context.Context, title, text string) error { return nil }

// TelegramNotifier sends messages through the Telegram bot API
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier creates a Telegram notifier for the given bot and chat
func NewTelegramNotifier(botToken, chatID string, logger zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With().Str("component", "telegram").Logger(),
	}
}

// SendMessage posts a message to the configured chat
func (t *TelegramNotifier) SendMessage(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshaling telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// SendAlert posts a titled message, with the title rendered bold
func (t *TelegramNotifier) SendAlert(ctx context.Context, title, text string) error {
	return t.SendMessage(ctx, fmt.Sprintf("<b>%s</b>\n%s", title, text))
}

// Send dispatches a message in the background with its own timeout, logging
// failures instead of returning them. Callers on the trading path use this.
func Send(n Notifier, logger zerolog.Logger, text string) {
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := n.SendMessage(ctx, text); err != nil {
			logger.Warn().Err(err).Msg("notification send failed")
		}
	}()
}

// Alert dispatches a titled alert in the background, mirroring Send
func Alert(n Notifier, logger zerolog.Logger, title, text string) {
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := n.SendAlert(ctx, title, text); err != nil {
			logger.Warn().Err(err).Str("title", title).Msg("alert send failed")
		}
	}()
}
