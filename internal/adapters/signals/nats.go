package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/PabloGalante/carebot/internal/domain"
)

// envelope is the JSON body of a published signal.
type envelope struct {
	Kind      string         `json:"kind"`
	SessionID string         `json:"session_id"`
	At        time.Time      `json:"at"`
	Data      map[string]any `json:"data,omitempty"`
}

// NATSPublisher publishes signals as JSON to <prefix>.signal.<kind>.
type NATSPublisher struct {
	nc      *nats.Conn
	prefix  string
	publish func(subject string, data []byte) error
}

func NewNATSPublisher(natsURL, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("carebot-api"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	p := newPublisher(prefix, nc.Publish)
	p.nc = nc
	return p, nil
}

func newPublisher(prefix string, publish func(subject string, data []byte) error) *NATSPublisher {
	if prefix == "" {
		prefix = "carebot"
	}
	return &NATSPublisher{prefix: prefix, publish: publish}
}

// Subject returns the subject a signal kind is published on.
func (p *NATSPublisher) Subject(kind domain.SignalKind) string {
	return p.prefix + ".signal." + string(kind)
}

func (p *NATSPublisher) Publish(_ context.Context, sig domain.Signal) error {
	data, err := json.Marshal(envelope{
		Kind:      string(sig.Kind),
		SessionID: string(sig.SessionID),
		At:        sig.At.UTC(),
		Data:      sig.Data,
	})
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}

	subject := p.Subject(sig.Kind)
	if err := p.publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		slog.Warn("NATS drain failed", "error", err)
		p.nc.Close()
	}
}

// Noop discards every signal.
type Noop struct{}

func (Noop) Publish(context.Context, domain.Signal) error { return nil }
