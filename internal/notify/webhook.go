package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/sjson"

	"github.com/compresr/pool-watcher/internal/watcher"
)

const (
	// maxResponseSize caps how much of a webhook response is read.
	maxResponseSize = 64 * 1024

	// maxErrorBodyLen limits error body in error messages to avoid log bloat.
	maxErrorBodyLen = 300
)

// WebhookSink posts alerts to a webhook URL.
type WebhookSink struct {
	url     string
	format  string
	timeout time.Duration
	client  *http.Client
}

// NewWebhookSink creates a sink. A nil client uses a plain http.Client.
func NewWebhookSink(cfg Config, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{}
	}
	format := cfg.Format
	if format == "" {
		format = FormatSlack
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &WebhookSink{url: cfg.WebhookURL, format: format, timeout: timeout, client: client}
}

// Deliver posts one alert. Any non-2xx answer is a rejected delivery.
func (s *WebhookSink) Deliver(ctx context.Context, alert watcher.Alert) error {
	body, err := s.payload(alert)
	if err != nil {
		return &DeliveryError{Class: ClassEncode, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Class: ClassEncode, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &DeliveryError{Class: ClassTransport, Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody := string(respBody)
		if len(errBody) > maxErrorBodyLen {
			errBody = errBody[:maxErrorBodyLen] + "... (truncated)"
		}
		return &DeliveryError{Class: ClassRejected, StatusCode: resp.StatusCode, Body: errBody}
	}
	return nil
}

func (s *WebhookSink) payload(alert watcher.Alert) ([]byte, error) {
	if s.format == FormatJSON {
		return JSONPayload(alert)
	}
	return SlackPayload(alert)
}

// =============================================================================
// PAYLOADS
// =============================================================================

// payload accumulates sjson edits and keeps the first error.
type payload struct {
	buf []byte
	err error
}

func (p *payload) set(path string, value any) {
	if p.err != nil {
		return
	}
	p.buf, p.err = sjson.SetBytes(p.buf, path, value)
}

// field adds one mrkdwn field to the section block at index.
func (p *payload) field(block, index int, text string) {
	prefix := fmt.Sprintf("blocks.%d.fields.%d.", block, index)
	p.set(prefix+"type", "mrkdwn")
	p.set(prefix+"text", text)
}

func (p *payload) header(text string) {
	p.set("blocks.0.type", "header")
	p.set("blocks.0.text.type", "plain_text")
	p.set("blocks.0.text.text", text)
	p.set("blocks.0.text.emoji", true)
}

func (p *payload) intro(text string) {
	p.set("blocks.1.type", "section")
	p.set("blocks.1.text.type", "mrkdwn")
	p.set("blocks.1.text.text", text)
	p.set("blocks.2.type", "divider")
	p.set("blocks.3.type", "section")
	p.set("blocks.4.type", "section")
}

// SlackPayload renders alert as a Slack incoming-webhook message.
func SlackPayload(alert watcher.Alert) ([]byte, error) {
	p := &payload{buf: []byte(`{}`)}
	ts := alert.Time().UTC().Format(time.RFC3339)

	switch a := alert.(type) {
	case watcher.FailoverAlert:
		p.set("text", fmt.Sprintf("🔄 System Failover Alert: %s → %s | Time: %s", a.FromPool, a.ToPool, ts))
		p.header("🔄 Blue/Green Deployment Failover Alert")
		p.intro("Failover detected. Kindly check.")
		p.field(3, 0, fmt.Sprintf("*Previous Pool:* `%s`", a.FromPool))
		p.field(3, 1, fmt.Sprintf("*Current Pool:* `%s`", a.ToPool))
		p.field(4, 0, fmt.Sprintf("*Timestamp:* %s", ts))
		p.field(4, 1, "*Total Requests:* "+humanize.Comma(a.RequestsSeen))
	case watcher.HighErrorRateAlert:
		p.set("text", fmt.Sprintf("🚨 Critical Alert: Error Rate at %.2f%% | Time: %s", a.ErrorRatePercent, ts))
		p.header("🚨 High Error Rate Alert")
		p.intro("The system is experiencing an elevated error rate above the configured threshold.")
		p.field(3, 0, fmt.Sprintf("*Current Rate:* %.2f%%", a.ErrorRatePercent))
		p.field(3, 1, fmt.Sprintf("*Threshold:* %.2f%%", a.ThresholdPercent))
		p.field(4, 0, fmt.Sprintf("*Error Count:* %d/%d", a.ErrorCount, a.WindowSize))
		p.field(4, 1, fmt.Sprintf("*Timestamp:* %s", ts))
	default:
		return nil, fmt.Errorf("unsupported alert type %T", alert)
	}

	if p.err != nil {
		return nil, p.err
	}
	return p.buf, nil
}

// JSONPayload renders alert as a flat JSON document tagged with its kind.
func JSONPayload(alert watcher.Alert) ([]byte, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return nil, err
	}
	p := &payload{buf: data}
	p.set("kind", alert.Kind().String())
	p.set("source", "pool-watcher")
	if p.err != nil {
		return nil, p.err
	}
	return p.buf, nil
}
