// Package events provides the per-run progress event bus. Publishing is
// non-blocking: a slow or absent observer never stalls the research loop.
// Each run keeps a bounded replay ring so late subscribers can catch up.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Kind identifies the event type on the wire.
type Kind string

const (
	KindStep             Kind = "step"
	KindRetryTriggered   Kind = "retry_triggered"
	KindConfidenceUpdate Kind = "confidence_update"
	KindGapsUpdated      Kind = "gaps_updated"
	KindComplete         Kind = "complete"
	KindError            Kind = "error"
)

// Terminal reports whether the kind ends a run's stream.
func (k Kind) Terminal() bool {
	return k == KindComplete || k == KindError
}

// Event is one ordered progress notification for a run.
type Event struct {
	RunID     string    `json:"run_id"`
	Type      Kind      `json:"event_type"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Marshal returns JSON for SSE payloads and logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Bus provides in-memory pub/sub for run events. Construct one per process
// and pass it explicitly; there is no package-level instance.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
}

// NewBus creates a bus whose per-run replay rings hold capacity events.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	return &Bus{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe adds a subscriber channel for a run; the caller must drain it
// and call Unsubscribe when done.
func (b *Bus) Subscribe(runID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[runID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		b.subscribers[runID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (b *Bus) Unsubscribe(runID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subscribers[runID]; ok {
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(b.subscribers, runID)
		}
	}
}

// Publish sends an event to all subscribers of the run. Events that cannot
// be delivered to a full subscriber buffer are dropped for that subscriber;
// the replay ring still records them. Fan-out happens under the lock so a
// concurrent Unsubscribe cannot close a channel mid-send; the sends are
// non-blocking, so the lock is never held waiting on a subscriber.
func (b *Bus) Publish(runID string, kind Kind, data any) Event {
	evt := Event{
		RunID:     runID,
		Type:      kind,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	rg := b.history[runID]
	if rg == nil {
		rg = newRing(b.capacity)
		b.history[runID] = rg
	}
	evt.Seq = rg.nextSeq
	rg.nextSeq++
	rg.push(evt)

	for ch := range b.subscribers[runID] {
		select {
		case ch <- evt:
		default:
			// Drop for slow subscribers; forward progress wins.
		}
	}
	return evt
}

// ReplaySince returns events with Seq > since, best-effort within ring
// capacity.
func (b *Bus) ReplaySince(runID string, since uint64) []Event {
	b.mu.RLock()
	rg := b.history[runID]
	b.mu.RUnlock()
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Forget drops a finished run's replay history.
func (b *Bus) Forget(runID string) {
	b.mu.Lock()
	delete(b.history, runID)
	b.mu.Unlock()
}

// ring is a fixed-capacity ring buffer of events.
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

// Sequence numbers start at 1 so a zero cursor means "from the beginning".
func newRing(capacity int) *ring {
	return &ring{buf: make([]Event, capacity), nextSeq: 1}
}

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		idx := (r.start + i) % len(r.buf)
		ev := r.buf[idx]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
