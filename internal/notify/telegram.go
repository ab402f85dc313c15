package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signal-lab/internal/domain"
)

// ErrNotConfigured is returned when a bot token or chat id is missing.
var ErrNotConfigured = errors.New("telegram notifier not configured")

// Default configuration values.
const (
	DefaultTelegramTimeout = 10 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = 1 * time.Second
	DefaultMaxDelay        = 30 * time.Second
	DefaultBackoffMult     = 2.0
)

type telegramConfig struct {
	endpoint    string
	client      tgbotapi.HTTPClient
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	logger      *log.Logger
}

// TelegramOption configures TelegramNotifier.
type TelegramOption func(*telegramConfig)

// WithEndpoint sets the bot API endpoint format, e.g. "https://api.telegram.org/bot%s/%s".
func WithEndpoint(endpoint string) TelegramOption {
	return func(c *telegramConfig) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) TelegramOption {
	return func(c *telegramConfig) {
		c.client = client
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) TelegramOption {
	return func(c *telegramConfig) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) TelegramOption {
	return func(c *telegramConfig) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay, including server-requested waits.
func WithMaxDelay(d time.Duration) TelegramOption {
	return func(c *telegramConfig) {
		c.maxDelay = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) TelegramOption {
	return func(c *telegramConfig) {
		c.logger = logger
	}
}

// TelegramNotifier posts signals to a chat through the Bot API.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	cfg    telegramConfig
}

// NewTelegramNotifier connects to the Bot API and verifies the token.
func NewTelegramNotifier(token string, chatID int64, opts ...TelegramOption) (*TelegramNotifier, error) {
	if token == "" || chatID == 0 {
		return nil, ErrNotConfigured
	}

	cfg := telegramConfig{
		endpoint:    tgbotapi.APIEndpoint,
		client:      &http.Client{Timeout: DefaultTelegramTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, cfg.endpoint, cfg.client)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	cfg.logger.Printf("[notify] telegram bot @%s ready", bot.Self.UserName)

	return &TelegramNotifier{bot: bot, chatID: chatID, cfg: cfg}, nil
}

// Notify sends sig with retries and exponential backoff. Rate limits and
// server errors are retried; other API errors are not.
func (n *TelegramNotifier) Notify(ctx context.Context, sig *domain.Signal) error {
	msg := tgbotapi.NewMessage(n.chatID, FormatSignal(sig))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	delay := n.cfg.retryDelay
	var lastErr error

	for attempt := 0; attempt <= n.cfg.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * n.cfg.backoffMult)
			if delay > n.cfg.maxDelay {
				delay = n.cfg.maxDelay
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := n.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			if apiErr.Code != http.StatusTooManyRequests && apiErr.Code < http.StatusInternalServerError {
				return fmt.Errorf("telegram send: %w", err)
			}
			if wait := time.Duration(apiErr.RetryAfter) * time.Second; wait > delay {
				delay = min(wait, n.cfg.maxDelay)
			}
		}
		n.cfg.logger.Printf("[notify] telegram send attempt %d failed: %v", attempt+1, err)
	}

	return fmt.Errorf("telegram send: max retries exceeded: %w", lastErr)
}

// Name returns "telegram".
func (n *TelegramNotifier) Name() string {
	return "telegram"
}

var _ Notifier = (*TelegramNotifier)(nil)
