package notify

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// SigningTransport is an http.RoundTripper that signs requests with AWS SigV4.
type SigningTransport struct {
	credentials aws.CredentialsProvider
	region      string
	service     string
	signer      *v4.Signer
	base        http.RoundTripper
	now         func() time.Time
}

// NewSigningTransport creates a transport that signs requests for service.
// It loads credentials from the standard AWS credential chain.
// The base transport is used for the actual HTTP call (nil uses http.DefaultTransport).
func NewSigningTransport(region, service string, base http.RoundTripper) (*SigningTransport, error) {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Verify credentials are retrievable
	if _, err := cfg.Credentials.Retrieve(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	return newSigningTransport(cfg.Credentials, region, service, base), nil
}

func newSigningTransport(creds aws.CredentialsProvider, region, service string, base http.RoundTripper) *SigningTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &SigningTransport{
		credentials: creds,
		region:      region,
		service:     service,
		signer:      v4.NewSigner(),
		base:        base,
		now:         time.Now,
	}
}

// Region returns the signing region.
func (t *SigningTransport) Region() string { return t.region }

// RoundTrip implements http.RoundTripper. It signs the request with SigV4 before sending.
func (t *SigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Read body for signing
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body for signing: %w", err)
		}
		req.Body.Close()
	}

	// RoundTrippers must not modify the caller's request.
	signed := req.Clone(req.Context())
	signed.Body = io.NopCloser(bytes.NewReader(body))

	creds, err := t.credentials.Retrieve(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	payloadHash := fmt.Sprintf("%x", sha256.Sum256(body))
	if err := t.signer.SignHTTP(req.Context(), creds, signed, payloadHash, t.service, t.region, t.now()); err != nil {
		return nil, fmt.Errorf("failed to sign webhook request: %w", err)
	}

	return t.base.RoundTrip(signed)
}
