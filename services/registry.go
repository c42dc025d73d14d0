package services

import (
	"sync"

	"github.com/bellapacxx/bingo-live/models"
)

// Deliverer pushes one serialized event to a subscriber's endpoint. A
// return of ErrSubscriberGone means the endpoint is gone for good, not a
// transient failure.
type Deliverer interface {
	Deliver(payload []byte) error
	Close()
}

// Subscriber pairs a connection record with its delivery endpoint.
type Subscriber struct {
	Conn    models.Connection
	deliver Deliverer
}

func (s *Subscriber) Deliver(payload []byte) error { return s.deliver.Deliver(payload) }
func (s *Subscriber) Close()                       { s.deliver.Close() }

// ConnectionRegistry tracks live subscribers. Membership races are benign:
// a missed or stale entry only affects that one subscriber's feed, so the
// registry is a plain mutex-guarded map with no conditional writes.
type ConnectionRegistry struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{subs: make(map[string]*Subscriber)}
}

func (r *ConnectionRegistry) Register(conn models.Connection, d Deliverer) *Subscriber {
	sub := &Subscriber{Conn: conn, deliver: d}
	r.mu.Lock()
	r.subs[conn.ID] = sub
	r.mu.Unlock()
	return sub
}

func (r *ConnectionRegistry) Unregister(id string) {
	r.mu.Lock()
	sub, ok := r.subs[id]
	delete(r.subs, id)
	r.mu.Unlock()
	if ok {
		sub.Close()
	}
}

func (r *ConnectionRegistry) List() []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out
}

// ListFilter returns subscribers whose connection satisfies pred, e.g.
// operators only or one room.
func (r *ConnectionRegistry) ListFilter(pred func(models.Connection) bool) []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		if pred(s.Conn) {
			out = append(out, s)
		}
	}
	return out
}

func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
