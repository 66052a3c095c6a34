package events

// Envelope is the serialised form of an event as delivered to subscribers:
// a stable type tag plus flat string attributes.
type Envelope struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Event represents a structured state change emitted by the vault engine or
// the token ledger.
type Event interface {
	EventType() string
	Event() *Envelope
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC streams,
// indexers, logs).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
