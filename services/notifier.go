package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var notifyFailuresCounter prometheus.Counter

func init() {
	notifyFailuresCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "approval_notifications_failed_total",
			Help: "Total number of approval notifications that could not be delivered.",
		},
	)
	prometheus.MustRegister(notifyFailuresCounter)
}

// ContentSummary ist das Payload des Approval-Events. Die Zustellung
// (Discord-Bridge etc.) ist Sache des externen Kollaborateurs.
type ContentSummary struct {
	ID             string   `json:"id"`
	Platform       string   `json:"platform"`
	URL            string   `json:"url"`
	Title          string   `json:"title,omitempty"`
	PrimaryChannel string   `json:"primary_channel,omitempty"`
	Channels       []string `json:"channels,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	ApprovedBy     string   `json:"approved_by,omitempty"`
}

// Notifier ist die injizierte Single-Method-Capability für Approval-Events.
type Notifier interface {
	NotifyApproved(ctx context.Context, content ContentSummary) error
}

// NoopNotifier verwirft alle Events (Tests, unkonfigurierte Umgebungen).
type NoopNotifier struct{}

func (NoopNotifier) NotifyApproved(ctx context.Context, content ContentSummary) error {
	return nil
}

// WebhookNotifier postet das Event als JSON an eine konfigurierte URL.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
	Logger *zap.Logger
}

func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
		Logger: logger,
	}
}

func (n *WebhookNotifier) NotifyApproved(ctx context.Context, content ContentSummary) error {
	body, err := json.Marshal(content)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook returned status %s", resp.Status)
	}
	return nil
}

// dispatchApproval feuert das Event asynchron mit eigenem, zeitlich
// begrenztem Context. Fehler werden gezählt und geloggt, nie propagiert:
// der Approve-Commit darf von der Zustellung nicht abhängen.
func dispatchApproval(notifier Notifier, timeout time.Duration, logger *zap.Logger, summary ContentSummary) {
	if notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := notifier.NotifyApproved(ctx, summary); err != nil {
			notifyFailuresCounter.Inc()
			logger.Warn("Approval notification failed",
				zap.String("content_id", summary.ID),
				zap.Error(err))
		}
	}()
}
