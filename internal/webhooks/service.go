package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Header names set on every delivery.
const (
	SignatureHeader = "X-Ledger-Signature"
	EventHeader     = "X-Ledger-Event"
)

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Service fans ledger events out to the configured subscribers.
type Service struct {
	subs       []Subscriber
	repo       *Repository
	httpClient *http.Client
	delays     []time.Duration
	onMetrics  MetricsRecorder
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewService creates a webhook Service for subs.
func NewService(subs []Subscriber, repo *Repository, logger *zap.Logger) *Service {
	if repo == nil {
		repo = NewRepository(0)
	}
	return &Service{
		subs:       subs,
		repo:       repo,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// First attempt immediately, then back off 1s, 5s, 25s.
		delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 25 * time.Second},
		logger: logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (s *Service) SetMetricsRecorder(fn MetricsRecorder) {
	s.onMetrics = fn
}

// SetRetryDelays replaces the delay before each attempt. The number of
// attempts equals len(delays).
func (s *Service) SetRetryDelays(delays []time.Duration) {
	s.delays = delays
}

// SetHTTPClient replaces the client used for deliveries.
func (s *Service) SetHTTPClient(c *http.Client) {
	s.httpClient = c
}

// Subscribers returns the configured endpoints.
func (s *Service) Subscribers() []Subscriber {
	return append([]Subscriber(nil), s.subs...)
}

// Deliveries returns the most recent delivery attempts, newest first.
func (s *Service) Deliveries(limit int) []WebhookDelivery {
	return s.repo.Recent(limit)
}

// Dispatch delivers an event to every matching subscriber in the background.
// The caller's cancellation does not abort deliveries already started.
func (s *Service) Dispatch(ctx context.Context, eventType string, payload any) {
	var matched []Subscriber
	for _, sub := range s.subs {
		if sub.wants(eventType) {
			matched = append(matched, sub)
		}
	}
	if len(matched) == 0 {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("webhook: marshal payload", zap.Error(err))
		return
	}
	event := WebhookEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}

	ctx = context.WithoutCancel(ctx)
	for _, sub := range matched {
		s.wg.Add(1)
		go func(sub Subscriber) {
			defer s.wg.Done()
			s.deliver(ctx, sub, event)
		}(sub)
	}
}

// Wait blocks until every in-flight delivery has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// deliver sends the event to a single subscriber with retries.
func (s *Service) deliver(ctx context.Context, sub Subscriber, event WebhookEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}
	signature := Sign(body, sub.Secret)

	for attempt := 1; attempt <= len(s.delays); attempt++ {
		if d := s.delays[attempt-1]; d > 0 {
			time.Sleep(d)
		}

		success, statusCode, errMsg := s.doDelivery(ctx, sub.URL, event.Type, body, signature)

		s.repo.RecordDelivery(WebhookDelivery{
			EventID:      event.ID,
			URL:          sub.URL,
			EventType:    event.Type,
			StatusCode:   statusCode,
			Attempt:      attempt,
			Success:      success,
			ErrorMessage: errMsg,
		})
		if s.onMetrics != nil {
			s.onMetrics(success)
		}
		if success {
			return
		}

		s.logger.Warn("webhook: delivery failed",
			zap.String("url", sub.URL),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

// doDelivery performs a single HTTP POST delivery.
func (s *Service) doDelivery(ctx context.Context, url, eventType string, body []byte, signature string) (bool, int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)
	req.Header.Set(EventHeader, eventType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

// Sign computes the HMAC-SHA256 signature sent in SignatureHeader.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is a valid Sign result for body.
func Verify(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}

// GenerateSecret creates a random 32-byte hex-encoded secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
