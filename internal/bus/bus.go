package bus

import (
	"sync"
	"time"

	"roomchat-service/internal/observability"
)

// Envelope is a room-tagged message unit flowing through the bus. It always
// describes a message that was already persisted.
type Envelope struct {
	RoomID    int64     `json:"room_id"`
	MessageID int64     `json:"message_id"`
	SenderID  int64     `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// subscriberBuffer bounds each subscription's inbound queue. A subscriber
// that falls this far behind starts losing envelopes and is expected to
// recover via a history read on reconnect.
const subscriberBuffer = 32

// Bus is a process-wide publish/subscribe fanout. It keeps no state beyond
// the live subscriber set and validates nothing about rooms or membership.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscription is a live per-connection filter for one room. Envelopes for
// other rooms are never delivered to it.
type Subscription struct {
	roomID int64
	ch     chan Envelope
	bus    *Bus
	once   sync.Once
}

// Subscribe registers a new subscription filtered to roomID.
func (b *Bus) Subscribe(roomID int64) *Subscription {
	s := &Subscription{
		roomID: roomID,
		ch:     make(chan Envelope, subscriberBuffer),
		bus:    b,
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Publish delivers the envelope to every subscription of the envelope's room.
// Delivery is best-effort: a subscription whose queue is full misses the
// envelope rather than blocking the publisher or other subscribers.
func (b *Bus) Publish(env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		if s.roomID != env.RoomID {
			continue
		}
		select {
		case s.ch <- env:
			observability.IncBusDelivery("delivered")
		default:
			observability.IncBusDelivery("dropped")
		}
	}
}

// C yields the subscription's envelopes. The channel is closed when the
// subscription is closed.
func (s *Subscription) C() <-chan Envelope {
	return s.ch
}

// Close releases the subscription. It is idempotent and safe to call
// concurrently with Publish; once it returns no further envelopes are queued.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		// No publisher can hold the subscription past this point, so closing
		// the channel cannot race a send.
		close(s.ch)
	})
}

// SubscriberCount reports the number of live subscriptions for a room.
func (b *Bus) SubscriberCount(roomID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	count := 0
	for s := range b.subs {
		if s.roomID == roomID {
			count++
		}
	}
	return count
}
