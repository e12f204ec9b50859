// Package runs executes review runs and streams their progress to
// subscribers.
package runs

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/swscloud/reviewd/internal/errors"
)

// Event is one run lifecycle notification.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Hub fans run events out to in-process subscribers (the SSE handlers).
// Slow subscribers drop events instead of blocking the run.
type Hub struct {
	mu   sync.RWMutex
	subs map[int64]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int64]map[chan Event]struct{})}
}

// Subscribe registers for one run's events. The returned cancel must be
// called when the subscriber goes away.
func (h *Hub) Subscribe(runID int64) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[chan Event]struct{})
	}
	h.subs[runID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[runID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, runID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber of runID.
func (h *Hub) Publish(runID int64, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[runID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Publisher forwards run events to an external bus.
type Publisher interface {
	Publish(runID int64, ev Event)
	Close()
}

// NATSPublisher mirrors run events onto reviewd.runs.{run_id} subjects so
// other services can follow review progress.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("reviewd"))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, errors.SeverityError, "connect nats")
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(runID int64, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = p.conn.Publish(fmt.Sprintf("reviewd.runs.%d", runID), payload)
}

func (p *NATSPublisher) Close() {
	p.conn.Close()
}
