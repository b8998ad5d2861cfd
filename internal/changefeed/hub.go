package changefeed

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Filter narrows a subscription to matching rows. A nil Filter matches all.
type Filter func(Event) bool

// FieldEquals matches rows whose column equals value, e.g. user_id = me.
func FieldEquals(column, value string) Filter {
	return func(ev Event) bool {
		var row map[string]any
		if err := json.Unmarshal(ev.Row, &row); err != nil {
			return false
		}
		v, ok := row[column]
		if !ok || v == nil {
			return false
		}
		return fmt.Sprint(v) == value
	}
}

// Hub fans change events out to in-process subscribers. Events reach each
// subscriber in Publish order. A subscriber that falls behind by more than
// its buffer is closed rather than silently skipped; live collections treat a
// closed stream as a signal to resync.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	logr   *zap.Logger
}

func NewHub(buffer int, logr *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	if logr == nil {
		logr = zap.NewNop()
	}
	return &Hub{subs: make(map[uint64]*Subscription), buffer: buffer, logr: logr}
}

type Subscription struct {
	id     uint64
	hub    *Hub
	table  string
	filter Filter
	ch     chan Event
}

func (s *Subscription) Events() <-chan Event { return s.ch }

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() error {
	s.hub.remove(s.id)
	return nil
}

// Subscribe registers interest in one table, or every table when table is "".
func (h *Hub) Subscribe(table string, filter Filter) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		hub:    h,
		table:  table,
		filter: filter,
		ch:     make(chan Event, h.buffer),
	}
	h.subs[sub.id] = sub
	return sub
}

// Publish delivers ev to every matching subscriber without blocking. Callers
// publishing from one source must do so from a single goroutine to keep
// commit order.
func (h *Hub) Publish(ev Event) {
	var overflowed []uint64

	h.mu.RLock()
	for id, sub := range h.subs {
		if sub.table != "" && sub.table != ev.Table {
			continue
		}
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			overflowed = append(overflowed, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range overflowed {
		h.logr.Warn("change subscriber overflowed, closing for resync",
			zap.Uint64("subscription", id),
			zap.String("table", ev.Table))
		h.remove(id)
	}
}

// Reset closes every subscription. Used after the upstream feed reconnects,
// since notifications may have been missed in between.
func (h *Hub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}
