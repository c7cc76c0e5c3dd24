// Package memory keeps recent outcome events in process. It is the default
// publisher when no Pub/Sub topic is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/pinfetch/internal/media"
)

const defaultCapacity = 256

// Publisher stores the most recent payloads in a fixed-size ring.
type Publisher struct {
	mu       sync.RWMutex
	capacity int
	messages []PublishedMessage
	total    int
}

var _ media.Publisher = (*Publisher)(nil)

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// New returns a Publisher keeping at most capacity messages. Zero selects a
// default.
func New(capacity int) *Publisher {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Publisher{capacity: capacity}
}

// Publish records the message, evicting the oldest when full.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.messages) == p.capacity {
		p.messages = append(p.messages[:0], p.messages[1:]...)
	}
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload})
	p.total++
	return fmt.Sprintf("memory-%d", p.total), nil
}

// Messages returns the retained publishes, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
