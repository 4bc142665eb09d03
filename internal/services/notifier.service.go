package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"watchpost/internal/telemetry"
)

// TestNotificationText is sent by the notification self-test
const TestNotificationText = "TEST: watchpost notifications are working"

// Notifier delivers alert text to a human. A nil error means delivered.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// TelegramNotifier sends messages through the Telegram Bot API.
type TelegramNotifier struct {
	token      string
	chatID     string
	httpClient *resty.Client
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegramNotifier creates a notifier for chatID. Requests are not
// retried; a failed delivery is dropped.
func NewTelegramNotifier(baseURL, token, chatID string, timeout time.Duration) *TelegramNotifier {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &TelegramNotifier{token: token, chatID: chatID, httpClient: httpClient}
}

// Send posts text to the configured chat
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	var result, failure telegramResponse
	resp, err := t.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id":                  t.chatID,
			"text":                     text,
			"disable_web_page_preview": true,
		}).
		SetResult(&result).
		SetError(&failure).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.token))
	if err != nil {
		// the URL carries the bot token; keep it out of logs
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram request failed: %w", err)
	}
	if resp.IsError() {
		if failure.Description != "" {
			return fmt.Errorf("telegram status %d: %s", resp.StatusCode(), failure.Description)
		}
		return fmt.Errorf("telegram status %d", resp.StatusCode())
	}
	if !result.OK {
		return fmt.Errorf("telegram rejected message: %s", result.Description)
	}
	return nil
}

// LogNotifier writes alerts to the log. It is used when no transport is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

// Send logs text and always succeeds
func (n *LogNotifier) Send(_ context.Context, text string) error {
	n.logger.Info().Str("text", text).Msg("notification")
	return nil
}

// Dispatcher hands notifications to a Notifier without making the caller wait.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Every send is bounded by timeout.
func NewDispatcher(notifier Notifier, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch sends text in the background. Failures are logged and counted,
// never retried.
func (d *Dispatcher) Dispatch(text string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		_ = d.Send(ctx, text)
	}()
}

// Send delivers text synchronously and returns the delivery error.
func (d *Dispatcher) Send(ctx context.Context, text string) error {
	err := d.notifier.Send(ctx, text)
	if err != nil {
		telemetry.Notifications.WithLabelValues("failed").Inc()
		d.logger.Warn().Err(err).Str("text", text).Msg("notification not delivered")
		return err
	}
	telemetry.Notifications.WithLabelValues("sent").Inc()
	return nil
}

// Wait blocks until every dispatched send has finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
