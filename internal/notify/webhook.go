package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/plategate/internal/plate"
)

// WebhookPath is appended to the configured service URL.
const WebhookPath = "/ocr/webhook"

// timestampLayout is ISO-8601 UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// maxErrorBody caps how much of a failed response body is logged.
const maxErrorBody = 4 << 10

// WebhookConfig configures delivery to the parking service.
type WebhookConfig struct {
	BaseURL string        `mapstructure:"url" yaml:"url" json:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// DefaultWebhookConfig returns the webhook defaults.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{BaseURL: "http://ocr-service:8086", Timeout: 10 * time.Second}
}

// webhookPayload mirrors the parking service OCR event DTO.
type webhookPayload struct {
	Plate     string  `json:"plate"`
	Timestamp string  `json:"timestamp"`
	Direction string  `json:"direction"`
	ParkingID int64   `json:"parkingId"`
	CameraID  int64   `json:"cameraId"`
	ImageURL  *string `json:"imageUrl"`
}

// Webhook posts accepted plates to the parking service.
type Webhook struct {
	endpoint string
	client   *http.Client
}

// NewWebhook builds a webhook notifier. A nil client gets one with the
// configured timeout.
func NewWebhook(cfg WebhookConfig, client *http.Client) *Webhook {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWebhookConfig().Timeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Webhook{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + WebhookPath,
		client:   client,
	}
}

// Endpoint returns the full webhook URL.
func (w *Webhook) Endpoint() string { return w.endpoint }

// Notify delivers ev and reports whether the service answered 200.
func (w *Webhook) Notify(ctx context.Context, ev plate.Event) bool {
	body, err := json.Marshal(newPayload(ev))
	if err != nil {
		slog.Error("failed to encode webhook payload", "plate", ev.Plate, "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		slog.Error("failed to build webhook request", "url", w.endpoint, "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		slog.Error("error sending to OCR service", "url", w.endpoint, "plate", ev.Plate, "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slog.Error("failed to send plate to OCR service",
			"status", resp.StatusCode, "body", string(text), "plate", ev.Plate)
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	slog.Info("sent plate to OCR service", "plate", ev.Plate, "direction", ev.Direction)
	return true
}

func newPayload(ev plate.Event) webhookPayload {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return webhookPayload{
		Plate:     ev.Plate,
		Timestamp: ts.UTC().Format(timestampLayout),
		Direction: string(ev.Direction),
		ParkingID: ev.ParkingID,
		CameraID:  ev.CameraID,
	}
}

// String implements fmt.Stringer for logging.
func (w *Webhook) String() string { return fmt.Sprintf("webhook(%s)", w.endpoint) }

// Discard is a notifier that never delivers.
type Discard struct{}

// Notify always reports false.
func (Discard) Notify(context.Context, plate.Event) bool { return false }

func (Discard) String() string { return "discard" }
