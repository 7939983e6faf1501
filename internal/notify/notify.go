// Package notify publishes completed-analysis notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"visibility-backend/internal/shared/telemetry"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "visibility.analysis.completed"

// Completed is the message body for a finished analysis.
type Completed struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Company   string    `json:"company"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notifier announces completed analyses.
type Notifier interface {
	AnalysisCompleted(ctx context.Context, msg Completed) error
	Close() error
}

// Noop drops every notification.
type Noop struct{}

func (Noop) AnalysisCompleted(context.Context, Completed) error { return nil }
func (Noop) Close() error                                       { return nil }

type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSPublisher publishes notifications on a core NATS subject.
type NATSPublisher struct {
	nc      conn
	subject string
}

// Connect dials NATS and returns a publisher for subject.
func Connect(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("visibility-backend"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				telemetry.Warn("notify.disconnected", map[string]any{"error": err})
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	telemetry.Info("notify.connected", map[string]any{"url": nc.ConnectedUrlRedacted(), "subject": subjectOrDefault(subject)})
	return newPublisher(nc, subject), nil
}

func newPublisher(nc conn, subject string) *NATSPublisher {
	return &NATSPublisher{nc: nc, subject: subjectOrDefault(subject)}
}

// AnalysisCompleted publishes msg and waits for the server to acknowledge the flush.
func (p *NATSPublisher) AnalysisCompleted(ctx context.Context, msg Completed) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", p.subject, err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (p *NATSPublisher) Close() error {
	p.nc.Close()
	return nil
}

// New returns a NATS publisher when url is set, otherwise Noop.
func New(url, subject string) (Notifier, error) {
	if strings.TrimSpace(url) == "" {
		return Noop{}, nil
	}
	p, err := Connect(url, subject)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func subjectOrDefault(s string) string {
	if strings.TrimSpace(s) == "" {
		return DefaultSubject
	}
	return s
}
