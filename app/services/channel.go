package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/tablecast/config"
	"github.com/amirphl/tablecast/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrChannelNotConfigured reports missing credentials for a channel
	ErrChannelNotConfigured = errors.New("channel not configured")
	// ErrNotAttempted is returned when the context ended before a send could start
	ErrNotAttempted = errors.New("send not attempted")
	// ErrUnknownChannel is returned by the registry for unsupported platforms
	ErrUnknownChannel = errors.New("unknown channel")
)

var dispatchTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "campaign_dispatch_total",
		Help: "Total number of campaign message dispatch attempts",
	},
	[]string{"channel", "result"},
)

// SendOptions carries optional per-message channel features
type SendOptions struct {
	// ButtonText and ButtonURL attach a single inline link button (telegram only)
	ButtonText string
	ButtonURL  string
}

// HasButton reports whether both button fields are set
func (o SendOptions) HasButton() bool {
	return o.ButtonText != "" && o.ButtonURL != ""
}

// Channel delivers one rendered message to one recipient.
//
// Delivery failures are reported in the returned outcome and never as an error.
// A non-nil error means the send was not attempted at all (context ended before
// the channel could start), and the outcome must be ignored.
type Channel interface {
	Platform() models.Platform
	Send(ctx context.Context, r models.Recipient, text string, opts SendOptions) (models.DispatchOutcome, error)
}

// ChannelRegistry resolves a channel by platform
type ChannelRegistry interface {
	Get(platform models.Platform) (Channel, error)
}

type channelRegistry struct {
	channels map[models.Platform]Channel
}

// NewChannelRegistry creates a registry of the given channels, keyed by their platform
func NewChannelRegistry(channels ...Channel) ChannelRegistry {
	m := make(map[models.Platform]Channel, len(channels))
	for _, ch := range channels {
		m[ch.Platform()] = ch
	}
	return &channelRegistry{channels: m}
}

func (r *channelRegistry) Get(platform models.Platform) (Channel, error) {
	ch, ok := r.channels[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, platform)
	}
	return ch, nil
}

// newLimiter returns nil for a non-positive rate
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func waitLimiter(ctx context.Context, l *rate.Limiter) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotAttempted, err)
	}
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNotAttempted, err)
	}
	return nil
}

func observeOutcome(logger *zap.Logger, o models.DispatchOutcome) {
	if o.Success {
		dispatchTotal.WithLabelValues(string(o.Channel), "sent").Inc()
		return
	}
	dispatchTotal.WithLabelValues(string(o.Channel), string(o.Category)).Inc()
	logger.Warn("campaign dispatch failed",
		zap.String("channel", string(o.Channel)),
		zap.Uint("customer_id", o.CustomerID),
		zap.String("category", string(o.Category)),
		zap.String("reason", o.Reason),
	)
}

// SMSChannel sends campaign messages through an SMS gateway
type SMSChannel struct {
	gateway SMSGateway
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewSMSChannel creates the SMS campaign channel. A nil gateway makes every send a configuration failure.
func NewSMSChannel(gateway SMSGateway, cfg config.SMSConfig, logger *zap.Logger) *SMSChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMSChannel{
		gateway: gateway,
		limiter: newLimiter(cfg.RatePerSecond),
		logger:  logger.Named("sms_channel"),
	}
}

func (c *SMSChannel) Platform() models.Platform { return models.PlatformSMS }

func (c *SMSChannel) Send(ctx context.Context, r models.Recipient, text string, _ SendOptions) (models.DispatchOutcome, error) {
	outcome := c.send(ctx, r, text)
	if outcome == nil {
		return models.DispatchOutcome{}, fmt.Errorf("%w: %v", ErrNotAttempted, ctx.Err())
	}
	observeOutcome(c.logger, *outcome)
	return *outcome, nil
}

func (c *SMSChannel) send(ctx context.Context, r models.Recipient, text string) *models.DispatchOutcome {
	address := r.PhoneNumber
	fail := func(category models.FailureCategory, reason string) *models.DispatchOutcome {
		o := models.FailedOutcome(r, models.PlatformSMS, address, category, reason)
		return &o
	}

	if c.gateway == nil {
		return fail(models.FailureConfiguration, "sms gateway is not configured")
	}
	if address == "" {
		return fail(models.FailureValidation, "recipient has no phone number")
	}
	if err := waitLimiter(ctx, c.limiter); err != nil {
		return nil
	}

	customerID := int64(r.CustomerID)
	if err := c.gateway.SendSMS(ctx, address, text, &customerID); err != nil {
		if errors.Is(err, ErrChannelNotConfigured) {
			return fail(models.FailureConfiguration, err.Error())
		}
		return fail(models.FailureTransient, err.Error())
	}
	o := models.SentOutcome(r, models.PlatformSMS, address)
	return &o
}

