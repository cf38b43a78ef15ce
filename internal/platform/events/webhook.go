package events

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/hospitrack/hospitrack/internal/platform/metrics"
)

const (
	SignatureHeader = "X-HospiTrack-Signature"
	EventHeader     = "X-HospiTrack-Event"
	DeliveryHeader  = "X-HospiTrack-Delivery"
)

// SignPayload returns the hex-encoded HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature returns true when the hex-encoded signature matches the HMAC-SHA256
// of payload under the given secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

type WebhookOption func(*WebhookPublisher)

func WithHTTPClient(c *resty.Client) WebhookOption {
	return func(p *WebhookPublisher) { p.client = c }
}

func WithMetrics(m *metrics.Metrics) WebhookOption {
	return func(p *WebhookPublisher) { p.metrics = m }
}

// WebhookPublisher POSTs signed events to a single endpoint. Calls go through
// a circuit breaker so an unreachable receiver is not hammered on every
// reservation.
type WebhookPublisher struct {
	url     string
	secret  string
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewWebhookPublisher(url, secret string, logger zerolog.Logger, opts ...WebhookOption) *WebhookPublisher {
	p := &WebhookPublisher{
		url:    url,
		secret: secret,
		client: resty.New().
			SetTimeout(5*time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(200*time.Millisecond).
			SetRetryMaxWaitTime(2*time.Second).
			SetHeader("Content-Type", "application/json"),
		logger: logger,
	}
	for _, o := range opts {
		o(p)
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.metrics.SetCircuitBreakerState(name, stateValue(to))
			p.logger.Warn().
				Str("circuit", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	p.metrics.SetCircuitBreakerState("webhook", 0)
	return p
}

func (p *WebhookPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		req := p.client.R().
			SetContext(ctx).
			SetHeader(EventHeader, evt.Type).
			SetHeader(DeliveryHeader, evt.ID).
			SetBody(body)
		if p.secret != "" {
			req.SetHeader(SignatureHeader, "sha256="+SignPayload(body, p.secret))
		}

		resp, err := req.Post(p.url)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("receiver returned %d", resp.StatusCode())
		}
		return nil, nil
	})
	if err != nil {
		p.metrics.ObserveEventFailure("webhook")
		if errors.Is(err, gobreaker.ErrOpenState) {
			return fmt.Errorf("webhook %s: circuit open", evt.Type)
		}
		return fmt.Errorf("webhook %s: %w", evt.Type, err)
	}
	return nil
}

// State exposes the breaker state for health reporting.
func (p *WebhookPublisher) State() gobreaker.State {
	return p.breaker.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
