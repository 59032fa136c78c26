package bus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"companion-pipeline/internal/domain/model"
	"companion-pipeline/internal/domain/ports/adapter"
	"companion-pipeline/internal/infra/metrics"
)

var _ adapter.EventPublisher = (*Bus)(nil)

// Bus fans events out to every current subscriber of a conversation. It is a
// plain constructor-injected value, not a process singleton, so tests can run
// isolated instances side by side.
//
// Publish never blocks: a subscriber whose buffer is full loses that delivery
// rather than stalling the worker that publishes terminal events. Clients are
// expected to reconcile through the job status query after a reconnect.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	log    *zerolog.Logger
}

// Subscription is one viewer's handle on a conversation's event stream.
// Events are delivered from the moment of subscription onward; there is no
// backlog replay.
type Subscription struct {
	conversationID string
	ch             chan model.Event
	bus            *Bus
	once           sync.Once
}

func New(buffer int, logger *zerolog.Logger) *Bus {
	busLog := logger.With().Str("component", "NotificationBus").Logger()
	return &Bus{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		log:    &busLog,
	}
}

func (b *Bus) Subscribe(conversationID string) *Subscription {
	sub := &Subscription{
		conversationID: conversationID,
		ch:             make(chan model.Event, b.buffer),
		bus:            b,
	}
	b.mu.Lock()
	set, ok := b.subs[conversationID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[conversationID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	metrics.IncBusSubscribers()
	b.log.Debug().Str("conversation_id", conversationID).Msg("subscriber added")
	return sub
}

// Events yields the subscription's stream. The channel closes on Unsubscribe.
func (s *Subscription) Events() <-chan model.Event { return s.ch }

// Close releases the subscription. Safe to call multiple times and from
// connection-close handlers.
func (s *Subscription) Close() { s.bus.Unsubscribe(s) }

func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.once.Do(func() {
		b.mu.Lock()
		if set, ok := b.subs[sub.conversationID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, sub.conversationID)
			}
		}
		close(sub.ch)
		b.mu.Unlock()

		metrics.DecBusSubscribers()
		b.log.Debug().Str("conversation_id", sub.conversationID).Msg("subscriber removed")
	})
}

// Publish delivers ev to all current subscribers of the conversation.
// Delivery to a subscriber that has gone away is a no-op, not an error.
func (b *Bus) Publish(conversationID string, ev model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[conversationID] {
		select {
		case sub.ch <- ev:
			metrics.IncBusEvent("delivered")
		default:
			metrics.IncBusEvent("dropped")
			b.log.Warn().
				Str("conversation_id", conversationID).
				Str("type", string(ev.Type)).
				Msg("subscriber buffer full, event dropped")
		}
	}
}

// RunKeepAlive publishes a heartbeat on every open subscription at the given
// cadence so transport idle timeouts do not silently kill live connections.
// Blocks until ctx is done; run it on its own goroutine.
func (b *Bus) RunKeepAlive(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ev := model.NewKeepAliveEvent()
			b.mu.RLock()
			for _, set := range b.subs {
				for sub := range set {
					select {
					case sub.ch <- ev:
					default:
						// keep-alives are droppable by definition
					}
				}
			}
			b.mu.RUnlock()
		}
	}
}
