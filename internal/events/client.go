// Package events publishes triage lifecycle events to NATS so downstream
// services (scheduling dashboards, SMS notifiers) can react to decisions.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// SubjectTriageAnalysed is published once per persisted decision.
const SubjectTriageAnalysed = "sepet.triage.analysed"

// TriageAnalysed is the payload of SubjectTriageAnalysed.
type TriageAnalysed struct {
	TenantID      string    `json:"tenant_id"`
	TriageID      uuid.UUID `json:"triage_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PetName       string    `json:"pet_name"`
	RiskFlag      bool      `json:"alerta_risco"`
	Source        string    `json:"source"`
	Fallback      bool      `json:"fallback"`
	AnalysedAt    time.Time `json:"analysed_at"`
}

// Publisher is what the worker depends on. Tests inject a recorder.
type Publisher interface {
	PublishTriageAnalysed(ctx context.Context, e TriageAnalysed) error
}

// Client is the NATS-backed Publisher.
type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewClient connects to NATS. The connection retries in the background, so
// a broker that is down at startup does not prevent the service from booting.
func NewClient(url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("sepet-backend"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("events: nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("events: nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: nats connect: %w", err)
	}
	return &Client{conn: nc, logger: logger}, nil
}

// PublishTriageAnalysed serialises e and publishes it. The context is only
// checked before publishing; nats.Publish itself does not block on the broker.
func (c *Client) PublishTriageAnalysed(ctx context.Context, e TriageAnalysed) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.publish(SubjectTriageAnalysed, e)
}

func (c *Client) publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("events: marshal payload: %w", err)
	}
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("events: publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("events: drain failed", "error", err)
		c.conn.Close()
	}
}

// ─── NO-OP ────────────────────────────────────────────────────────────────────

// Nop discards every event. Used when NATS_URL is unset.
type Nop struct{}

func (Nop) PublishTriageAnalysed(context.Context, TriageAnalysed) error { return nil }
