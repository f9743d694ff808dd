// Package notify publishes processing run activity to NATS so that other
// services can follow runs without polling the HTTP API.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/JonMunkholm/promptfactory/internal/core"
	"github.com/JonMunkholm/promptfactory/internal/logging"
)

// Publisher is the part of *nats.Conn the publisher needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher implements core.RunObserver. Events of a streaming run go to
// <prefix>.<run_id>.events and run summaries to <prefix>.completed.
//
// Core NATS publishes are buffered by the client, so observing never blocks
// the run. Publish failures are logged and dropped.
type NATSPublisher struct {
	pub    Publisher
	conn   *nats.Conn // nil when built with New
	prefix string
}

var _ core.RunObserver = (*NATSPublisher)(nil)

// Connect dials url and returns a publisher using subject prefix.
func Connect(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("promptfactory"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", "url", c.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := New(nc, prefix)
	p.conn = nc
	return p, nil
}

// New wraps an existing publisher.
func New(pub Publisher, prefix string) *NATSPublisher {
	return &NATSPublisher{pub: pub, prefix: strings.Trim(prefix, ".")}
}

// EventSubject is the subject events of runID are published on.
func (p *NATSPublisher) EventSubject(runID string) string {
	return p.prefix + "." + runID + ".events"
}

// CompletedSubject is the subject run summaries are published on.
func (p *NATSPublisher) CompletedSubject() string {
	return p.prefix + ".completed"
}

func (p *NATSPublisher) ObserveEvent(ctx context.Context, runID string, ev core.Event) {
	p.publish(ctx, p.EventSubject(runID), ev)
}

func (p *NATSPublisher) ObserveCompleted(ctx context.Context, sum core.RunSummary) {
	p.publish(ctx, p.CompletedSubject(), sum)
}

func (p *NATSPublisher) publish(ctx context.Context, subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.FromContext(ctx).Error("failed to encode run notification", "subject", subject, "error", err)
		return
	}
	if err := p.pub.Publish(subject, data); err != nil {
		logging.FromContext(ctx).Warn("failed to publish run notification", "subject", subject, "error", err)
	}
}

// Close flushes pending messages and closes a connection opened by Connect.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
