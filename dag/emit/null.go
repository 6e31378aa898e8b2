package emit

// NullEmitter implements Emitter by discarding all events.
//
// Use it where observability overhead is unwanted or event capture is not
// needed. Safe for concurrent use, zero overhead.
type NullEmitter struct{}

// NewNullEmitter creates a new NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event without any processing.
func (n *NullEmitter) Emit(event Event) {}
