// Package eventbus implements the event broadcaster that fans mission and
// fleet events out to dashboard subscribers. Delivery is best-effort: each
// subscriber owns a bounded queue and a slow consumer loses its oldest
// events behind a single gap marker instead of stalling publication.
package eventbus

import (
	"strings"
	"sync"
	"time"

	"github.com/agrilink/fleetcore/core/events"
)

// DefaultQueueSize bounds a subscriber's outbound queue when the caller
// does not configure one.
const DefaultQueueSize = 256

// Broadcaster fans events out to subscribers with per-subscriber bounded
// queues. The event stream is a live signal only; it is never persisted.
type Broadcaster struct {
	queueSize int
	mu        sync.RWMutex
	subs      map[*Subscription]struct{}
	closed    bool

	published func() // metric hooks, optional
	dropped   func(n int)
}

// New creates a Broadcaster. queueSize <= 0 selects DefaultQueueSize.
func New(queueSize int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Broadcaster{
		queueSize: queueSize,
		subs:      make(map[*Subscription]struct{}),
	}
}

// SetHooks installs optional callbacks invoked on publish and on dropped
// events. Used to feed prometheus counters without importing them here.
func (b *Broadcaster) SetHooks(published func(), dropped func(n int)) {
	b.mu.Lock()
	b.published = published
	b.dropped = dropped
	b.mu.Unlock()
}

// Subscribe registers a subscriber for events matching filter. An empty
// filter matches every topic; a trailing "*" matches by prefix
// ("mission:*"); anything else must match exactly. The returned
// subscription must be released with Unsubscribe.
func (b *Broadcaster) Subscribe(filter string) *Subscription {
	sub := &Subscription{
		filter: filter,
		limit:  b.queueSize,
		out:    make(chan events.Event),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.out)
		return sub
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	go sub.pump()
	return sub
}

// Unsubscribe releases the subscription's resources. It is safe to call
// more than once and after Close.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	sub.stop()
}

// Publish delivers the event to every matching subscriber. It never
// blocks on a slow consumer.
func (b *Broadcaster) Publish(ev events.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	if b.published != nil {
		b.published()
	}
	for sub := range b.subs {
		if !matches(sub.filter, ev.Topic()) {
			continue
		}
		if n := sub.enqueue(ev); n > 0 && b.dropped != nil {
			b.dropped(n)
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close terminates every subscription and rejects further publishes.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
}

// matches reports whether topic satisfies the subscription filter.
func matches(filter, topic string) bool {
	switch {
	case filter == "":
		return true
	case strings.HasSuffix(filter, "*"):
		return strings.HasPrefix(topic, strings.TrimSuffix(filter, "*"))
	default:
		return filter == topic
	}
}

// Subscription is one dashboard connection's view of the stream. Events
// are read from Events(); the channel closes on Unsubscribe or when the
// broadcaster shuts down.
type Subscription struct {
	filter string
	limit  int

	mu      sync.Mutex
	queue   []events.Event
	gapped  bool // a gap marker is at the head of the queue
	dropped int

	out      chan events.Event
	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Events returns the subscriber's receive channel.
func (s *Subscription) Events() <-chan events.Event { return s.out }

// enqueue adds the event to the bounded queue, dropping the oldest unsent
// event on overflow. The first drop of an overflow episode replaces the
// head with a single gap marker; the marker survives later drops so the
// consumer always learns it must resync. Returns the number of real
// events dropped.
func (s *Subscription) enqueue(ev events.Event) int {
	s.mu.Lock()
	droppedNow := 0
	if len(s.queue) >= s.limit {
		if s.gapped {
			// Head is the gap marker; drop the oldest real event after it.
			s.queue = append(s.queue[:1], s.queue[2:]...)
			droppedNow++
		} else {
			s.queue = s.queue[1:]
			droppedNow++
			s.gapped = true
			s.queue = append([]events.Event{events.Gap{Time: time.Now()}}, s.queue...)
			// The marker took the freed slot; make room for the new event.
			if len(s.queue) >= s.limit {
				s.queue = append(s.queue[:1], s.queue[2:]...)
				droppedNow++
			}
		}
		s.dropped += droppedNow
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return droppedNow
}

// pump moves events from the queue to the outbound channel until stopped.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		var ev events.Event
		if len(s.queue) > 0 {
			ev = s.queue[0]
			s.queue = s.queue[1:]
			if _, isGap := ev.(events.Gap); isGap {
				if g, ok := ev.(events.Gap); ok {
					g.Dropped = s.dropped
					ev = g
				}
				s.gapped = false
				s.dropped = 0
			}
		}
		s.mu.Unlock()
		if ev == nil {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
