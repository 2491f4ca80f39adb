package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when publishing to a closed publisher.
var ErrClosed = errors.New("publisher is closed")

// MemoryPublisher keeps every published message in memory.
// It is used when alerting is disabled and in tests.
type MemoryPublisher struct {
	mu       sync.RWMutex
	messages []BatchMessage
	closed   bool
}

// NewMemoryPublisher creates an empty in-memory publisher
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records a copy of data under subject
func (p *MemoryPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	p.messages = append(p.messages, BatchMessage{Subject: subject, Data: dataCopy})
	return nil
}

// PublishBatch publishes messages in order until one fails
func (p *MemoryPublisher) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	for i, msg := range messages {
		if err := p.Publish(ctx, msg.Subject, msg.Data); err != nil {
			return i, err
		}
	}
	return len(messages), nil
}

// Close stops accepting messages; recorded messages stay readable
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Messages returns the recorded messages of subject, or all messages when
// subject is empty
func (p *MemoryPublisher) Messages(subject string) []BatchMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []BatchMessage
	for _, m := range p.messages {
		if subject == "" || m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

// Reset drops all recorded messages
func (p *MemoryPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = nil
}
