package events

// Event is anything the booking engine can broadcast to subscribers.
type Event interface {
	EventType() string
}

// Emitter delivers events to downstream consumers such as the RPC event log
// or an external indexer.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies Emitter while discarding everything. Components that
// expose events optionally default to it.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
