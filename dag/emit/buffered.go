package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// It captures all events and provides query capabilities for later
// analysis, keyed by graph id. Useful in tests, for debugging a refused
// mutation, or for powering a local dashboard.
//
// Warning: events are held in memory indefinitely until cleared. For
// long-lived processes with high event volume, prefer LogEmitter or
// OTelEmitter.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // graphID -> events
}

// HistoryFilter specifies criteria for filtering captured events. All
// fields are optional; when several are set they combine with AND logic.
type HistoryFilter struct {
	// NodeID filters by task or workflow node (empty = no filter).
	NodeID string

	// Msg filters by event name, e.g. "cycle_check" (empty = no filter).
	Msg string
}

// NewBufferedEmitter creates a new in-memory event buffer.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores the event in the buffer, grouped by GraphID.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.GraphID] = append(b.events[event.GraphID], event)
}

// History returns a copy of all events captured for the given graph id,
// in emission order.
func (b *BufferedEmitter) History(graphID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[graphID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// HistoryWithFilter returns the events for graphID matching the filter,
// in emission order.
func (b *BufferedEmitter) HistoryWithFilter(graphID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, ev := range b.events[graphID] {
		if filter.NodeID != "" && ev.NodeID != filter.NodeID {
			continue
		}
		if filter.Msg != "" && ev.Msg != filter.Msg {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Clear removes all captured events for the given graph id.
func (b *BufferedEmitter) Clear(graphID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, graphID)
}

// ClearAll removes every captured event.
func (b *BufferedEmitter) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = make(map[string][]Event)
}
