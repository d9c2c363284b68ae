// Package broadcast fans out replay state updates to subscribers.
package broadcast

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/xiaot623/replay/domain"
)

// subscriber delivers updates to one callback on its own goroutine, so a
// slow or failing callback never blocks the publisher or its peers.
type subscriber struct {
	id   string
	ch   chan domain.Update
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Broadcaster fans out every update for a replay id to all current
// subscribers of that id, in publish order. Each subscriber has a
// buffered channel drained by a dedicated goroutine; a subscriber whose
// buffer fills is evicted rather than allowed to stall delivery.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[string]map[string]*subscriber // replayID -> subscriberID
	seqs   map[string]uint64                 // replayID -> last published seq
	buffer int
}

// New creates a broadcaster with the given per-subscriber buffer size.
func New(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 256
	}
	return &Broadcaster{
		subs:   make(map[string]map[string]*subscriber),
		seqs:   make(map[string]uint64),
		buffer: buffer,
	}
}

// Subscribe registers fn for all updates published to replayID and
// returns an unsubscribe function. Updates are delivered to fn in publish
// order on a dedicated goroutine.
func (b *Broadcaster) Subscribe(replayID string, fn func(domain.Update)) func() {
	sub := &subscriber{
		id: uuid.New().String(),
		ch: make(chan domain.Update, b.buffer),
	}

	b.mu.Lock()
	if b.subs[replayID] == nil {
		b.subs[replayID] = make(map[string]*subscriber)
	}
	b.subs[replayID][sub.id] = sub
	b.mu.Unlock()

	go func() {
		for u := range sub.ch {
			fn(u)
		}
	}()

	return func() {
		b.remove(replayID, sub.id)
	}
}

// Publish stamps the update with the next sequence number for its replay
// id and delivers it to every current subscriber. Never blocks: a
// subscriber with a full buffer is evicted.
func (b *Broadcaster) Publish(u domain.Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seqs[u.ReplayID]++
	u.Seq = b.seqs[u.ReplayID]

	for id, sub := range b.subs[u.ReplayID] {
		select {
		case sub.ch <- u:
		default:
			// Buffer full, drop the subscriber
			log.Printf("WARN: subscriber %s of replay %s too slow, evicting", id, u.ReplayID)
			delete(b.subs[u.ReplayID], id)
			sub.close()
		}
	}
}

// CloseReplay removes all subscribers of a replay id after any buffered
// updates drain. Callers publish the closure update first.
func (b *Broadcaster) CloseReplay(replayID string) {
	b.mu.Lock()
	subs := b.subs[replayID]
	delete(b.subs, replayID)
	delete(b.seqs, replayID)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// SubscriberCount returns the number of active subscribers for a replay id.
func (b *Broadcaster) SubscriberCount(replayID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[replayID])
}

func (b *Broadcaster) remove(replayID, subID string) {
	b.mu.Lock()
	sub, ok := b.subs[replayID][subID]
	if ok {
		delete(b.subs[replayID], subID)
		if len(b.subs[replayID]) == 0 {
			delete(b.subs, replayID)
		}
	}
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}
