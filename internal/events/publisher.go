// Package events publishes build lifecycle events over NATS JetStream.
// Publishing is best-effort: a nil *Publisher is a valid no-op, and publish
// failures are logged, never propagated into the build path.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Event types carried on the subject.
const (
	TypeBuildStarted   = "build.started"
	TypeBuildCompleted = "build.completed"
	TypeBuildFailed    = "build.failed"
)

// BuildEvent is the wire payload for one lifecycle transition.
type BuildEvent struct {
	Type         string    `json:"type"`
	InstanceID   string    `json:"instance_id"`
	InstanceCode string    `json:"instance_code"`
	ExitCode     int       `json:"exit_code,omitempty"`
	DelayMS      int64     `json:"delay,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher sends build events to a JetStream subject.
type Publisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// Connect establishes the NATS connection. Returns an error when the server
// is unreachable; callers may treat events as optional and run without.
func Connect(url, subject string) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", url, err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	slog.Info("Event publisher connected", "url", url, "subject", subject)
	return &Publisher{conn: conn, js: js, subject: subject}, nil
}

// Publish sends one event; safe on a nil receiver.
func (p *Publisher) Publish(ctx context.Context, ev BuildEvent) {
	if p == nil {
		return
	}
	ev.Timestamp = time.Now()
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Failed to marshal build event", "type", ev.Type, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := p.js.Publish(ctx, p.subject, data); err != nil {
		slog.Warn("Failed to publish build event", "type", ev.Type, "instance", ev.InstanceCode, "error", err)
	}
}

// Close closes the underlying connection; safe on a nil receiver.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
