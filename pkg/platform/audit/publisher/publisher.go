// Package publisher is the write side of the audit trail: domain code emits
// events here and never talks to a store directly.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "enroll/pkg/platform/audit"
)

// Publisher forwards events to a store, either synchronously or through a
// bounded buffer drained by a background goroutine. When the buffer is full
// the event is dropped rather than blocking the request path; the audit
// trail is best-effort by construction, the flow itself never waits on it.
type Publisher struct {
	store audit.Store

	inbox     chan audit.Event
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to asynchronous mode with the
// given buffer capacity.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Event, size)
	}
}

// NewPublisher creates a publisher over the given store.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}

	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.inbox {
		// Detached context: the emitting request may be long gone.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := p.store.Append(ctx, event); err != nil {
			slog.Warn("audit append failed", "action", event.Action, "error", err)
		}
		cancel()
	}
}

// Emit records an event, stamping the time when the caller did not.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	// The send races Close otherwise: shutdown ordering is not something
	// emitting code should have to care about.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		slog.Warn("audit publisher closed, dropping event", "action", event.Action)
		return nil
	}

	select {
	case p.inbox <- event:
	default:
		slog.Warn("audit buffer full, dropping event", "action", event.Action)
	}
	return nil
}

// List reads a flow's trail back from the underlying store.
func (p *Publisher) List(ctx context.Context, flowID string) ([]audit.Event, error) {
	return p.store.ListByFlow(ctx, flowID)
}

// Close drains the buffer and stops the background worker. Safe to call
// more than once.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		if p.inbox != nil {
			close(p.inbox)
			p.wg.Wait()
		}
	})
}
