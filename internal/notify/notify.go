// Package notify delivers approved alerts to a webhook endpoint.
//
// DESIGN: One sink, two payload formats:
//   - slack: Slack incoming-webhook block kit message (default)
//   - json:  flat alert document for generic webhook receivers
//
// Delivery is a single best-effort POST bounded by Timeout. There are no
// retries here; the watcher engine logs and journals failures.
//
// When aws_sigv4 is enabled, requests are signed with the default AWS
// credential chain (Lambda function URLs, API Gateway with IAM auth).
package notify

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultTimeout bounds a single delivery.
	DefaultTimeout = 10 * time.Second

	FormatSlack = "slack"
	FormatJSON  = "json"
)

// Config contains notifier settings.
type Config struct {
	WebhookURL string        `yaml:"webhook_url"` // empty = alerts are logged only
	Format     string        `yaml:"format"`      // slack, json
	Timeout    time.Duration `yaml:"timeout"`     // per delivery
	SigV4      SigV4Config   `yaml:"aws_sigv4"`   // optional request signing
}

// SigV4Config enables AWS SigV4 signing of webhook requests.
type SigV4Config struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`  // default: AWS_REGION, then us-east-1
	Service string `yaml:"service"` // signing name, e.g. lambda, execute-api
}

// Configured reports whether an endpoint is set.
func (c Config) Configured() bool {
	return c.WebhookURL != ""
}

// Validate checks the notifier settings.
func (c Config) Validate() error {
	if c.WebhookURL == "" {
		return nil
	}
	u, err := url.Parse(c.WebhookURL)
	if err != nil {
		return fmt.Errorf("notifier.webhook_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("notifier.webhook_url must be http or https, got %q", u.Scheme)
	}
	switch c.Format {
	case "", FormatSlack, FormatJSON:
	default:
		return fmt.Errorf("notifier.format must be %q or %q, got %q", FormatSlack, FormatJSON, c.Format)
	}
	if c.Timeout < 0 {
		return errors.New("notifier.timeout must not be negative")
	}
	if c.SigV4.Enabled && c.SigV4.Service == "" {
		return errors.New("notifier.aws_sigv4.service is required when signing is enabled")
	}
	return nil
}

// New builds the webhook sink for cfg. It returns nil when no endpoint is
// configured.
func New(cfg Config) (*WebhookSink, error) {
	if !cfg.Configured() {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := &http.Client{} // timeout via context, not client
	if cfg.SigV4.Enabled {
		transport, err := NewSigningTransport(cfg.SigV4.Region, cfg.SigV4.Service, nil)
		if err != nil {
			return nil, fmt.Errorf("aws sigv4: %w", err)
		}
		client.Transport = transport
	}
	return NewWebhookSink(cfg, client), nil
}
