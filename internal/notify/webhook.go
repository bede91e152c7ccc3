// Package notify delivers auto-stop notifications to an optional HTTP
// webhook, so unattended deployments can observe endpointing without a
// connected control client.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kylin1zhang/voicecap/internal/util"
)

const webhookTimeout = 10 * time.Second

// WebhookPayload is the JSON body sent to the webhook endpoint.
type WebhookPayload struct {
	Event        string  `json:"event"`
	Reason       string  `json:"reason,omitempty"`
	DeviceID     string  `json:"device_id,omitempty"`
	DurationMs   int64   `json:"duration_ms,omitempty"`
	ThresholdRMS float64 `json:"threshold_rms,omitempty"`
	Message      string  `json:"message,omitempty"`
	Timestamp    string  `json:"timestamp"`
}

// SendAutoStop notifies the webhook that a recording was ended by the
// endpointing engine.
func SendAutoStop(webhookURL, reason, deviceID string, durationMs int64, thresholdRMS float64) error {
	return send(webhookURL, &WebhookPayload{
		Event:        "auto_stop",
		Reason:       reason,
		DeviceID:     deviceID,
		DurationMs:   durationMs,
		ThresholdRMS: thresholdRMS,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
}

// SendTest sends a test notification to verify configuration.
func SendTest(webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}
	return send(webhookURL, &WebhookPayload{
		Event:     "test",
		Message:   "This is a test notification from voicecap",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// send delivers a payload to the webhook endpoint. An empty URL is a
// silent no-op so callers need not guard the call.
func send(webhookURL string, payload *WebhookPayload) error {
	if webhookURL == "" {
		return nil
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: webhookTimeout}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best effort

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
