// Package notify pushes saved anomalies to an external webhook.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"dctwin/internal/domain"
)

// Payload is the JSON body posted to the webhook
type Payload struct {
	SiteID    string           `json:"site_id"`
	Count     int              `json:"count"`
	Anomalies []domain.Anomaly `json:"anomalies"`
	SentAt    time.Time        `json:"sent_at"`
}

// Options configures the webhook client
type Options struct {
	URL         string
	Token       string
	MinSeverity domain.Severity
	Timeout     time.Duration
	RetryCount  int
}

// Webhook posts anomalies at or above a severity threshold
type Webhook struct {
	httpClient  *resty.Client
	minSeverity domain.Severity
	logger      *zap.Logger
}

// NewWebhook creates a webhook notifier
func NewWebhook(opts Options, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MinSeverity == "" {
		opts.MinSeverity = domain.SeverityHigh
	}

	client := resty.New().
		SetBaseURL(opts.URL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}

	return &Webhook{
		httpClient:  client,
		minSeverity: opts.MinSeverity,
		logger:      logger,
	}
}

// Notify posts the anomalies that meet the severity threshold. Nothing is
// sent when none qualify.
func (w *Webhook) Notify(ctx context.Context, siteID string, anomalies []domain.Anomaly) error {
	selected := make([]domain.Anomaly, 0, len(anomalies))
	for _, a := range anomalies {
		if a.Severity.AtLeast(w.minSeverity) {
			selected = append(selected, a)
		}
	}
	if len(selected) == 0 {
		return nil
	}

	body := Payload{
		SiteID:    siteID,
		Count:     len(selected),
		Anomalies: selected,
		SentAt:    time.Now().UTC(),
	}

	resp, err := w.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		Post("")
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	w.logger.Info("anomalies sent to webhook",
		zap.String("site_id", siteID),
		zap.Int("count", len(selected)),
	)
	return nil
}
