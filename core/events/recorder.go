package events

import (
	"strings"
	"sync"

	"ubook/core/types"
)

// payloadEvent is implemented by events that carry a full types.Event payload
// in addition to their type tag.
type payloadEvent interface {
	Event
	Event() *types.Event
}

// RecordedEvent is a captured event together with the monotonic sequence
// number assigned on arrival.
type RecordedEvent struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Recorder is an Emitter that keeps a bounded in-memory history of emitted
// events so RPC consumers can page through them by sequence number.
type Recorder struct {
	mu       sync.RWMutex
	nextSeq  int64
	capacity int
	history  []RecordedEvent
}

const defaultRecorderCapacity = 4096

// NewRecorder returns a recorder retaining at most capacity events. A
// non-positive capacity falls back to the default.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = defaultRecorderCapacity
	}
	return &Recorder{capacity: capacity}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	recorded := RecordedEvent{Type: evt.EventType(), Attributes: map[string]string{}}
	if payload, ok := evt.(payloadEvent); ok {
		if full := payload.Event(); full != nil {
			recorded.Type = full.Type
			for k, v := range full.Attributes {
				recorded.Attributes[k] = v
			}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	recorded.Sequence = r.nextSeq
	r.history = append(r.history, recorded)
	if len(r.history) > r.capacity {
		r.history = r.history[len(r.history)-r.capacity:]
	}
}

// List returns up to limit events with a sequence greater than afterSeq whose
// type matches the optional prefix. A non-positive limit returns everything
// retained.
func (r *Recorder) List(prefix string, afterSeq int64, limit int) []RecordedEvent {
	if r == nil {
		return nil
	}
	normalized := strings.ToLower(strings.TrimSpace(prefix))
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RecordedEvent, 0, len(r.history))
	for _, evt := range r.history {
		if evt.Sequence <= afterSeq {
			continue
		}
		if normalized != "" && !strings.HasPrefix(strings.ToLower(evt.Type), normalized) {
			continue
		}
		copied := RecordedEvent{Sequence: evt.Sequence, Type: evt.Type, Attributes: make(map[string]string, len(evt.Attributes))}
		for k, v := range evt.Attributes {
			copied.Attributes[k] = v
		}
		out = append(out, copied)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
