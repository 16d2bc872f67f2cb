// Package events is the in-process notification channel for account changes.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mtlprog/finsight/internal/domain"
	"github.com/mtlprog/finsight/internal/metrics"
)

// Account-change topics.
const (
	TopicAccountCreated = "linked-account.created"
	TopicAccountUpdated = "linked-account.updated"
)

// Event carries the account as it was at the time of the change.
type Event struct {
	ID         string
	Topic      string
	Account    domain.Account
	OccurredAt time.Time
}

// Handler consumes an event. Returned errors and panics are logged, never propagated to the publisher.
type Handler func(ctx context.Context, ev Event) error

type subscription struct {
	name   string
	handle Handler
}

// Bus dispatches events synchronously to the handlers subscribed to their topic.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]subscription)}
}

// Subscribe registers handler for topic. name labels logs and metrics.
func (b *Bus) Subscribe(topic, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], subscription{name: name, handle: handler})
}

// Publish delivers ev to every subscriber of ev.Topic in subscription order.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.handlers[ev.Topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := dispatch(ctx, sub, ev); err != nil {
			metrics.EventHandlerFailures.WithLabelValues(ev.Topic, sub.name).Inc()
			slog.Error("event handler failed",
				"topic", ev.Topic, "handler", sub.name, "event_id", ev.ID, "account_id", ev.Account.ID, "error", err)
		}
	}
}

// PublishAccount is a shorthand for Publish with a fresh event for acc.
func (b *Bus) PublishAccount(ctx context.Context, topic string, acc domain.Account) {
	b.Publish(ctx, Event{Topic: topic, Account: acc})
}

func dispatch(ctx context.Context, sub subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sub.handle(ctx, ev)
}
