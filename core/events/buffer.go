package events

import "sync"

// Buffer collects events emitted while an operation is still speculative.
// The node drains it into the broker once the state manager commits, or
// resets it when the operation is discarded, so subscribers never observe
// events from aborted operations.
type Buffer struct {
	mu      sync.Mutex
	pending []Envelope
}

// NewBuffer returns an empty event buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	env := evt.Event()
	if env == nil {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, *env)
	b.mu.Unlock()
}

// Drain returns the buffered events and clears the buffer.
func (b *Buffer) Drain() []Envelope {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	drained := b.pending
	b.pending = nil
	return drained
}

// Reset discards any buffered events.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
