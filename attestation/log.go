// Package attestation implements an append-only log correlating token
// holders with the events they attended. Each record carries a
// content-derived id, so two logs fed the same records in the same order
// agree on every id without coordination.
package attestation

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/keepsake-xyz/go-keepsake/identity"
	"github.com/keepsake-xyz/go-keepsake/journal"
)

const stream = "attestation"

// Attestation is one immutable record of attendance or upgrade activity.
type Attestation struct {
	ID        string           `json:"id"`
	EventRef  string           `json:"eventRef"`
	Holder    identity.Address `json:"holder"`
	TokenID   uint64           `json:"tokenId"`
	IsUpgrade bool             `json:"isUpgrade"`
	Seq       uint64           `json:"seq"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Log is the in-memory attestation store. Records are only ever appended;
// nothing mutates or removes an entry once written.
type Log struct {
	mu       sync.RWMutex
	owner    identity.Address
	recorder identity.Address
	seq      uint64
	byID     map[string]*Attestation
	byHolder map[identity.Address][]*Attestation
	byEvent  map[string][]*Attestation
	jnl      *journal.Journal
}

// NewLog returns an empty log administered by owner. The owner may record
// directly or delegate to a single recorder address.
func NewLog(owner identity.Address, jnl *journal.Journal) *Log {
	if jnl == nil {
		jnl = journal.New()
	}
	return &Log{
		owner:    owner,
		byID:     make(map[string]*Attestation),
		byHolder: make(map[identity.Address][]*Attestation),
		byEvent:  make(map[string][]*Attestation),
		jnl:      jnl,
	}
}

// SetRecorder nominates the address allowed to record alongside the owner.
// The zero address revokes the delegation.
func (l *Log) SetRecorder(caller, recorder identity.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.owner {
		return fmt.Errorf("%w: %s cannot set recorder", ErrUnauthorized, caller)
	}
	l.recorder = recorder
	return nil
}

// Recorder returns the currently delegated recorder address.
func (l *Log) Recorder() identity.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.recorder
}

// attestationID derives the record id from its content plus the log's
// monotonic sequence number. The sequence disambiguates otherwise identical
// records without leaning on wall-clock granularity.
func attestationID(eventRef string, holder identity.Address, tokenID uint64, isUpgrade bool, seq uint64) string {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(eventRef)))
	h.Write(buf[:])
	h.Write([]byte(eventRef))
	h.Write(holder[:])
	binary.BigEndian.PutUint64(buf[:], tokenID)
	h.Write(buf[:])
	if isUpgrade {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	binary.BigEndian.PutUint64(buf[:], seq)
	h.Write(buf[:])
	return "att:" + hex.EncodeToString(h.Sum(nil))
}

func (l *Log) authorized(caller identity.Address) bool {
	if caller == l.owner {
		return true
	}
	return !l.recorder.IsZero() && caller == l.recorder
}

func (l *Log) validate(eventRef string, holder identity.Address) error {
	if eventRef == "" {
		return ErrInvalidEventRef
	}
	if holder.IsZero() {
		return fmt.Errorf("%w: event %s", ErrInvalidHolder, eventRef)
	}
	return nil
}

// append writes one record under the held write lock and returns its id.
func (l *Log) append(caller identity.Address, eventRef string, holder identity.Address, tokenID uint64, isUpgrade bool) string {
	l.seq++
	a := &Attestation{
		ID:        attestationID(eventRef, holder, tokenID, isUpgrade, l.seq),
		EventRef:  eventRef,
		Holder:    holder,
		TokenID:   tokenID,
		IsUpgrade: isUpgrade,
		Seq:       l.seq,
		CreatedAt: time.Now().UTC(),
	}
	l.byID[a.ID] = a
	l.byHolder[holder] = append(l.byHolder[holder], a)
	l.byEvent[eventRef] = append(l.byEvent[eventRef], a)
	l.jnl.Append(stream, journal.KindAttestationRecorded, caller.Hex(), map[string]any{
		"attestation": a.ID,
		"event":       eventRef,
		"holder":      holder.Hex(),
		"token":       tokenID,
		"upgrade":     isUpgrade,
	})
	return a.ID
}

// Record appends a single attestation and returns its id. Only the owner or
// the delegated recorder may record.
func (l *Log) Record(caller identity.Address, eventRef string, holder identity.Address, tokenID uint64, isUpgrade bool) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.authorized(caller) {
		return "", fmt.Errorf("%w: %s cannot record", ErrUnauthorized, caller)
	}
	if err := l.validate(eventRef, holder); err != nil {
		return "", err
	}
	return l.append(caller, eventRef, holder, tokenID, isUpgrade), nil
}

// BatchRecord appends one attestation per element across the parallel
// slices. All four slices must have equal length, and every element must
// pass validation before anything is written; a failure anywhere leaves the
// log untouched.
func (l *Log) BatchRecord(caller identity.Address, eventRefs []string, holders []identity.Address, tokenIDs []uint64, upgrades []bool) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.authorized(caller) {
		return nil, fmt.Errorf("%w: %s cannot record", ErrUnauthorized, caller)
	}
	n := len(eventRefs)
	if len(holders) != n || len(tokenIDs) != n || len(upgrades) != n {
		return nil, fmt.Errorf("%w: events=%d holders=%d tokens=%d upgrades=%d",
			ErrArrayLengthMismatch, n, len(holders), len(tokenIDs), len(upgrades))
	}
	for i := 0; i < n; i++ {
		if err := l.validate(eventRefs[i], holders[i]); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = l.append(caller, eventRefs[i], holders[i], tokenIDs[i], upgrades[i])
	}
	return ids, nil
}

// Get returns the attestation with the given id.
func (l *Log) Get(id string) (Attestation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.byID[id]
	if !ok {
		return Attestation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *a, nil
}

// ForHolder returns every attestation recorded for holder, oldest first.
func (l *Log) ForHolder(holder identity.Address) []Attestation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyRecords(l.byHolder[holder])
}

// ForEvent returns every attestation recorded against eventRef, oldest first.
func (l *Log) ForEvent(eventRef string) []Attestation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyRecords(l.byEvent[eventRef])
}

// UpgradesForHolder returns only the upgrade records for holder.
func (l *Log) UpgradesForHolder(holder identity.Address) []Attestation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Attestation
	for _, a := range l.byHolder[holder] {
		if a.IsUpgrade {
			out = append(out, *a)
		}
	}
	return out
}

// CountForHolder reports how many attestations holder has accumulated.
func (l *Log) CountForHolder(holder identity.Address) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byHolder[holder])
}

// CountForEvent reports how many attestations eventRef has accumulated.
func (l *Log) CountForEvent(eventRef string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byEvent[eventRef])
}

// HasAttended reports whether at least one attestation links holder to
// eventRef.
func (l *Log) HasAttended(holder identity.Address, eventRef string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, a := range l.byHolder[holder] {
		if a.EventRef == eventRef {
			return true
		}
	}
	return false
}

// Total reports the number of records in the log.
func (l *Log) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}

// Journal exposes the log's event journal.
func (l *Log) Journal() *journal.Journal {
	return l.jnl
}

func copyRecords(in []*Attestation) []Attestation {
	if len(in) == 0 {
		return nil
	}
	out := make([]Attestation, len(in))
	for i, a := range in {
		out[i] = *a
	}
	return out
}
