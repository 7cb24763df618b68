package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/amirphl/tablecast/config"
	"github.com/amirphl/tablecast/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultTelegramAPIBaseURL = "https://api.telegram.org"

// TelegramChannel sends campaign messages through the Telegram Bot API sendMessage method
type TelegramChannel struct {
	token   string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

type inlineKeyboardButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// NewTelegramChannel creates the telegram campaign channel. An empty bot token is
// accepted here; every send then fails with a configuration outcome.
func NewTelegramChannel(cfg config.TelegramConfig, logger *zap.Logger) *TelegramChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = defaultTelegramAPIBaseURL
	}
	return &TelegramChannel{
		token:   strings.TrimSpace(cfg.BotToken),
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout()},
		limiter: newLimiter(cfg.RatePerSecond),
		logger:  logger.Named("telegram_channel"),
	}
}

func (c *TelegramChannel) Platform() models.Platform { return models.PlatformTelegram }

func (c *TelegramChannel) Send(ctx context.Context, r models.Recipient, text string, opts SendOptions) (models.DispatchOutcome, error) {
	outcome, err := c.send(ctx, r, text, opts)
	if err != nil {
		return models.DispatchOutcome{}, err
	}
	observeOutcome(c.logger, outcome)
	return outcome, nil
}

func (c *TelegramChannel) send(ctx context.Context, r models.Recipient, text string, opts SendOptions) (models.DispatchOutcome, error) {
	var chatID string
	if r.TelegramChatID != nil {
		chatID = strings.TrimSpace(*r.TelegramChatID)
	}
	fail := func(category models.FailureCategory, reason string) (models.DispatchOutcome, error) {
		return models.FailedOutcome(r, models.PlatformTelegram, chatID, category, reason), nil
	}

	if c.token == "" {
		return fail(models.FailureConfiguration, "telegram bot token is not configured")
	}
	if chatID == "" {
		return fail(models.FailureValidation, "recipient has no telegram chat id")
	}

	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)
	if opts.HasButton() {
		markup, err := json.Marshal(inlineKeyboardMarkup{
			InlineKeyboard: [][]inlineKeyboardButton{{{Text: opts.ButtonText, URL: opts.ButtonURL}}},
		})
		if err != nil {
			return fail(models.FailureValidation, fmt.Sprintf("failed to encode reply markup: %v", err))
		}
		form.Set("reply_markup", string(markup))
	}

	if err := waitLimiter(ctx, c.limiter); err != nil {
		return models.DispatchOutcome{}, err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fail(models.FailureConfiguration, c.redact(fmt.Sprintf("failed to create HTTP request: %v", err)))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fail(models.FailureTransient, c.redact(describeTransportError(err)))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var tr telegramResponse
	_ = json.Unmarshal(body, &tr)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		category := models.FailureTransient
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound {
			// telegram answers 401/404 for revoked or malformed bot tokens
			category = models.FailureConfiguration
		}
		reason := fmt.Sprintf("telegram http status: %d", resp.StatusCode)
		if tr.Description != "" {
			reason += ": " + tr.Description
		}
		return fail(category, c.redact(reason))
	}
	if !tr.OK {
		reason := "telegram response not ok"
		if tr.Description != "" {
			reason += ": " + tr.Description
		}
		return fail(models.FailureTransient, c.redact(reason))
	}

	return models.SentOutcome(r, models.PlatformTelegram, chatID), nil
}

// redact removes the bot token from text that may embed the request URL
func (c *TelegramChannel) redact(s string) string {
	if c.token == "" {
		return s
	}
	return strings.ReplaceAll(s, c.token, "<redacted>")
}

func describeTransportError(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return fmt.Sprintf("telegram request timed out: %v", urlErr.Err)
		}
		return fmt.Sprintf("telegram request failed: %v", urlErr.Err)
	}
	return fmt.Sprintf("telegram request failed: %v", err)
}
