package notify_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/compresr/pool-watcher/internal/notify"
	"github.com/compresr/pool-watcher/internal/watcher"
)

var alertTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

type captured struct {
	mu     sync.Mutex
	bodies []string
	ctypes []string
}

func (c *captured) last() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.bodies)
	return c.bodies[n-1], c.ctypes[n-1]
}

func newWebhook(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, string(body))
		c.ctypes = append(c.ctypes, r.Header.Get("Content-Type"))
		c.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func failoverAlert() watcher.FailoverAlert {
	return watcher.FailoverAlert{ID: "a-1", FromPool: "blue", ToPool: "green", ObservedAt: alertTime, RequestsSeen: 1234}
}

func errorRateAlert() watcher.HighErrorRateAlert {
	return watcher.HighErrorRateAlert{ID: "a-2", ErrorRatePercent: 4.5, ThresholdPercent: 2, ErrorCount: 9, WindowSize: 200, ObservedAt: alertTime}
}

// =============================================================================
// SLACK PAYLOADS
// =============================================================================

func TestSlackPayload_Failover(t *testing.T) {
	body, err := notify.SlackPayload(failoverAlert())
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(body))

	doc := gjson.ParseBytes(body)
	assert.Equal(t, "🔄 System Failover Alert: blue → green | Time: 2025-03-14T09:26:53Z", doc.Get("text").String())
	assert.Equal(t, "header", doc.Get("blocks.0.type").String())
	assert.Equal(t, "divider", doc.Get("blocks.2.type").String())
	assert.Equal(t, "*Previous Pool:* `blue`", doc.Get("blocks.3.fields.0.text").String())
	assert.Equal(t, "*Current Pool:* `green`", doc.Get("blocks.3.fields.1.text").String())
	assert.Equal(t, "*Timestamp:* 2025-03-14T09:26:53Z", doc.Get("blocks.4.fields.0.text").String())
	assert.Equal(t, "*Total Requests:* 1,234", doc.Get("blocks.4.fields.1.text").String())
	assert.Equal(t, "mrkdwn", doc.Get("blocks.4.fields.1.type").String())
}

func TestSlackPayload_HighErrorRate(t *testing.T) {
	body, err := notify.SlackPayload(errorRateAlert())
	require.NoError(t, err)

	doc := gjson.ParseBytes(body)
	assert.Contains(t, doc.Get("text").String(), "Error Rate at 4.50%")
	assert.Equal(t, "*Current Rate:* 4.50%", doc.Get("blocks.3.fields.0.text").String())
	assert.Equal(t, "*Threshold:* 2.00%", doc.Get("blocks.3.fields.1.text").String())
	assert.Equal(t, "*Error Count:* 9/200", doc.Get("blocks.4.fields.0.text").String())
}

func TestJSONPayload(t *testing.T) {
	body, err := notify.JSONPayload(errorRateAlert())
	require.NoError(t, err)

	doc := gjson.ParseBytes(body)
	assert.Equal(t, "high_error_rate", doc.Get("kind").String())
	assert.Equal(t, "pool-watcher", doc.Get("source").String())
	assert.Equal(t, "a-2", doc.Get("id").String())
	assert.InDelta(t, 4.5, doc.Get("error_rate").Float(), 1e-9)
	assert.EqualValues(t, 200, doc.Get("window_size").Int())
}

// =============================================================================
// DELIVERY
// =============================================================================

func TestWebhookSink_DeliverSlack(t *testing.T) {
	srv, c := newWebhook(t, http.StatusOK)
	sink := notify.NewWebhookSink(notify.Config{WebhookURL: srv.URL}, nil)

	require.NoError(t, sink.Deliver(context.Background(), failoverAlert()))

	body, ctype := c.last()
	assert.Equal(t, "application/json", ctype)
	assert.Equal(t, "header", gjson.Get(body, "blocks.0.type").String())
}

func TestWebhookSink_DeliverJSON(t *testing.T) {
	srv, c := newWebhook(t, http.StatusAccepted)
	sink := notify.NewWebhookSink(notify.Config{WebhookURL: srv.URL, Format: notify.FormatJSON}, nil)

	require.NoError(t, sink.Deliver(context.Background(), failoverAlert()))

	body, _ := c.last()
	assert.Equal(t, "failover", gjson.Get(body, "kind").String())
	assert.Equal(t, "green", gjson.Get(body, "to_pool").String())
}

func TestWebhookSink_Rejected(t *testing.T) {
	srv, _ := newWebhook(t, http.StatusForbidden)
	sink := notify.NewWebhookSink(notify.Config{WebhookURL: srv.URL}, nil)

	err := sink.Deliver(context.Background(), errorRateAlert())
	require.Error(t, err)

	var de *notify.DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, notify.ClassRejected, de.Class)
	assert.Equal(t, http.StatusForbidden, de.StatusCode)
	assert.Equal(t, "ok", de.Body)
	assert.Contains(t, err.Error(), "status 403")
}

func TestWebhookSink_TransportError(t *testing.T) {
	srv, _ := newWebhook(t, http.StatusOK)
	url := srv.URL
	srv.Close()

	sink := notify.NewWebhookSink(notify.Config{WebhookURL: url}, nil)
	err := sink.Deliver(context.Background(), failoverAlert())

	var de *notify.DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, notify.ClassTransport, de.Class)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestWebhookSink_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	sink := notify.NewWebhookSink(notify.Config{WebhookURL: srv.URL, Timeout: 20 * time.Millisecond}, nil)
	err := sink.Deliver(context.Background(), failoverAlert())

	var de *notify.DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, notify.ClassTransport, de.Class)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     notify.Config
		wantErr string
	}{
		{"unconfigured", notify.Config{}, ""},
		{"https slack", notify.Config{WebhookURL: "https://hooks.slack.com/services/T/B/X"}, ""},
		{"json", notify.Config{WebhookURL: "http://alerts:8080/hook", Format: "json"}, ""},
		{"bad scheme", notify.Config{WebhookURL: "ftp://example.com"}, "http or https"},
		{"bad format", notify.Config{WebhookURL: "https://x", Format: "xml"}, "notifier.format"},
		{"negative timeout", notify.Config{WebhookURL: "https://x", Timeout: -time.Second}, "timeout"},
		{"sigv4 without service", notify.Config{WebhookURL: "https://x", SigV4: notify.SigV4Config{Enabled: true}}, "service"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}

func TestNew_Unconfigured(t *testing.T) {
	sink, err := notify.New(notify.Config{})
	require.NoError(t, err)
	assert.Nil(t, sink)
}
