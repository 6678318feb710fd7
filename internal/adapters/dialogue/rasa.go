package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/PabloGalante/carebot/internal/domain"
	"github.com/PabloGalante/carebot/internal/observability"
)

// maxResponseBytes bounds how much of a webhook body is read.
const maxResponseBytes = 1 << 20

// RasaClient implements domain.DialogueClient against a Rasa REST channel
// (POST {sender, message} → JSON array of bot responses).
type RasaClient struct {
	httpClient *http.Client
	endpoint   string
}

// Option mutates a RasaClient.
type Option func(*RasaClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *RasaClient) { r.httpClient = c }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(r *RasaClient) { r.httpClient.Timeout = d }
}

// NewRasaClient creates a webhook client for endpoint
// (e.g. http://localhost:5007/webhooks/rest/webhook).
func NewRasaClient(endpoint string, opts ...Option) (*RasaClient, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid dialogue endpoint %q", endpoint)
	}

	c := &RasaClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		endpoint:   endpoint,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Exchange implements domain.DialogueClient.
func (c *RasaClient) Exchange(ctx context.Context, sender domain.SessionID, message string) (frags []domain.Fragment, err error) {
	ctx, span := observability.StartSpan(ctx, "dialogue.exchange",
		attribute.String("session_id", string(sender)))
	defer func() {
		span.SetAttributes(attribute.Int("fragment_count", len(frags)))
		elapsed := span.End(err)
		observability.LoggerFromContext(ctx).Debug("dialogue exchange",
			"session_id", sender, "duration_ms", elapsed.Milliseconds(), "error", err)
	}()

	log := observability.LoggerFromContext(ctx).With("session_id", sender)

	body, err := json.Marshal(webhookRequest{Sender: string(sender), Message: message})
	if err != nil {
		return nil, fmt.Errorf("encode webhook request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrNetworkFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: webhook returned %d: %s",
			domain.ErrNetworkFailure, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	wire, err := decodeFragments(raw)
	if err != nil {
		return nil, err
	}

	return toFragments(wire, log), nil
}

// Probe checks that the dialogue server answers on its origin.
func (c *RasaClient) Probe(ctx context.Context) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	root := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, root, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: probe returned %d", domain.ErrNetworkFailure, resp.StatusCode)
	}
	return nil
}

// decodeFragments accepts only a JSON array; null, objects and scalars are malformed.
func decodeFragments(raw []byte) ([]wireFragment, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", domain.ErrMalformedResponse)
	}

	var out []wireFragment
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return out, nil
}
