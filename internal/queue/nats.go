package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig represents NATS connection configuration
type NATSConfig struct {
	URL      string
	Username string
	Password string
	Name     string // Client name shown by the server (default: "pvratio")
}

// NATSPublisher publishes alerts with core NATS
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to NATS
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "pvratio"
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(5 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// NewNATSPublisherWithConn wraps an existing connection
func NewNATSPublisherWithConn(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// Publish publishes a message and waits for the server to process it
func (p *NATSPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}
	if err := p.flush(ctx); err != nil {
		return fmt.Errorf("failed to flush subject %s: %w", subject, err)
	}
	return nil
}

// PublishBatch queues all messages and flushes once
func (p *NATSPublisher) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	queued := 0
	var firstErr error
	for _, msg := range messages {
		if err := p.conn.Publish(msg.Subject, msg.Data); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		queued++
	}

	if err := p.flush(ctx); err != nil {
		return 0, fmt.Errorf("timeout waiting for batch publish: %w", err)
	}
	if queued == 0 && firstErr != nil {
		return 0, fmt.Errorf("failed to publish batch: %w", firstErr)
	}
	return queued, nil
}

func (p *NATSPublisher) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); ok {
		return p.conn.FlushWithContext(ctx)
	}
	return p.conn.FlushTimeout(5 * time.Second)
}

// Close drains the connection
func (p *NATSPublisher) Close() error {
	if p.conn.IsClosed() {
		return nil
	}
	return p.conn.Drain()
}

// Conn returns the underlying NATS connection
func (p *NATSPublisher) Conn() *nats.Conn {
	return p.conn
}
