// Package journal records the structured domain events the registries and
// the coordinator emit, with in-memory, SQLite, and JSONL representations
// for external indexers.
package journal

import (
	"sync"
	"time"
)

// Event kinds emitted by the core. Every state-changing operation appends
// exactly one primary event; pairing additionally appends the fee
// distribution.
const (
	KindTokenIssued            = "token.issued"
	KindTokenVoided            = "token.voided"
	KindCollectiblePaired      = "collectible.paired"
	KindCollectibleTransferred = "collectible.transferred"
	KindFeeDistributed         = "fee.distributed"
	KindAttestationRecorded    = "attestation.recorded"
	KindEventCreated           = "event.created"
	KindEventUpdated           = "event.updated"
	KindEventStatus            = "event.status"
)

// Event is one entry in the append-only domain stream.
type Event struct {
	Seq    uint64         `json:"seq"`
	Stream string         `json:"stream"`
	Kind   string         `json:"kind"`
	Actor  string         `json:"actor"`
	At     time.Time      `json:"at"`
	Attrs  map[string]any `json:"attrs,omitempty"`
}

// Journal is a mutex-guarded append-only event stream. Sequence numbers
// are strictly monotonic across all streams sharing the journal.
type Journal struct {
	mu     sync.RWMutex
	seq    uint64
	events []Event
}

// New creates an empty journal.
func New() *Journal {
	return &Journal{}
}

// FromEvents rebuilds a journal from previously persisted events. The
// sequence counter resumes after the highest loaded sequence number.
func FromEvents(events []Event) *Journal {
	j := New()
	j.events = append(j.events, events...)
	for _, e := range events {
		if e.Seq > j.seq {
			j.seq = e.Seq
		}
	}
	return j
}

// Append records one event and returns it with its sequence number set.
func (j *Journal) Append(stream, kind, actor string, attrs map[string]any) Event {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++
	e := Event{
		Seq:    j.seq,
		Stream: stream,
		Kind:   kind,
		Actor:  actor,
		At:     time.Now().UTC(),
		Attrs:  attrs,
	}
	j.events = append(j.events, e)
	return e
}

// Events returns a copy of the full stream in append order.
func (j *Journal) Events() []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Event, len(j.events))
	copy(out, j.events)
	return out
}

// ByKind returns all events of one kind in append order.
func (j *Journal) ByKind(kind string) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Event
	for _, e := range j.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// ByStream returns all events of one stream in append order.
func (j *Journal) ByStream(stream string) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Event
	for _, e := range j.events {
		if e.Stream == stream {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of recorded events.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.events)
}
