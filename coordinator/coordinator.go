// Package coordinator orchestrates the attendance and collectible
// registries into end-to-end operations and owns dynamic event
// registration. It validates event state, delegates to the registries,
// and records an attestation for every completed mint or pairing.
package coordinator

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/keepsake-xyz/go-keepsake/attendance"
	"github.com/keepsake-xyz/go-keepsake/attestation"
	"github.com/keepsake-xyz/go-keepsake/collectible"
	"github.com/keepsake-xyz/go-keepsake/identity"
	"github.com/keepsake-xyz/go-keepsake/journal"
	"github.com/keepsake-xyz/go-keepsake/metrics"
)

const stream = "coordinator"

// Event is one registered event and its live lifecycle state. Capacity
// zero means unlimited attendance.
type Event struct {
	ID          string           `json:"id"`
	Creator     identity.Address `json:"creator"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	ImageRef    string           `json:"imageRef"`
	Capacity    uint64           `json:"capacity"`
	Active      bool             `json:"active"`
	Attendees   uint64           `json:"attendees"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Config wires a Coordinator to its registries. Operator is the
// administrative identity the coordinator acts as when it records
// attestations or registers events on behalf of others.
type Config struct {
	Operator    identity.Address
	Attendance  *attendance.Registry
	Collectible *collectible.Registry
	Journal     *journal.Journal
	Logger      *zerolog.Logger
}

// Coordinator composes the registries behind the event lifecycle. Events
// may flip between active and inactive indefinitely; only the creator
// moves them.
type Coordinator struct {
	id       string
	operator identity.Address
	att      *attendance.Registry
	col      *collectible.Registry
	log      *attestation.Log
	jnl      *journal.Journal
	logger   zerolog.Logger

	mu      sync.RWMutex
	events  map[string]*Event
	counter uint64
}

// New builds a Coordinator and the attestation log it records into. The
// log is owned by the configured operator, so coordinator-driven records
// cannot be rejected by a recorder mismatch.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Operator.IsZero() {
		return nil, ErrInvalidOperator
	}
	if cfg.Attendance == nil || cfg.Collectible == nil {
		return nil, ErrNotConfigured
	}
	jnl := cfg.Journal
	if jnl == nil {
		jnl = journal.New()
	}
	c := &Coordinator{
		id:       uuid.NewString(),
		operator: cfg.Operator,
		att:      cfg.Attendance,
		col:      cfg.Collectible,
		log:      attestation.NewLog(cfg.Operator, jnl),
		jnl:      jnl,
		events:   make(map[string]*Event),
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	c.logger = logger.With().Str("coordinator", c.id).Logger()
	metrics.SetTreasuryBps(cfg.Collectible.FeeSplit().TreasuryBps)
	return c, nil
}

// InstanceID returns the unique id of this coordinator instance.
func (c *Coordinator) InstanceID() string {
	return c.id
}

// Attestations exposes the coordinator's attestation log.
func (c *Coordinator) Attestations() *attestation.Log {
	return c.log
}

// Journal exposes the shared event journal.
func (c *Coordinator) Journal() *journal.Journal {
	return c.jnl
}

// eventID derives a deterministic id from the creator, the event name,
// and the coordinator's creation counter. The counter keeps repeated
// (creator, name) registrations distinct.
func eventID(creator identity.Address, name string, counter uint64) string {
	h := sha256.New()
	h.Write(creator[:])
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(name)))
	h.Write(buf[:])
	h.Write([]byte(name))
	binary.BigEndian.PutUint64(buf[:], counter)
	h.Write(buf[:])
	return "evt:" + hex.EncodeToString(h.Sum(nil))
}

// CreateEvent registers a new event with the caller as creator. Events
// start active. Registration is permissionless.
func (c *Coordinator) CreateEvent(caller identity.Address, name, description, imageRef string, capacity uint64) (string, error) {
	if caller.IsZero() {
		return "", fmt.Errorf("%w: zero address cannot create events", ErrUnauthorized)
	}
	return c.register(caller, caller, name, description, imageRef, capacity)
}

// RegisterEventFor registers an event on behalf of creator. Only the
// coordinator's operator may use this path.
func (c *Coordinator) RegisterEventFor(caller, creator identity.Address, name, description, imageRef string, capacity uint64) (string, error) {
	if caller != c.operator {
		return "", fmt.Errorf("%w: %s cannot register for others", ErrUnauthorized, caller)
	}
	if creator.IsZero() {
		return "", ErrInvalidCreator
	}
	return c.register(caller, creator, name, description, imageRef, capacity)
}

func (c *Coordinator) register(actor, creator identity.Address, name, description, imageRef string, capacity uint64) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	if imageRef == "" {
		return "", ErrEmptyImageRef
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	now := time.Now().UTC()
	ev := &Event{
		ID:          eventID(creator, name, c.counter),
		Creator:     creator,
		Name:        name,
		Description: description,
		ImageRef:    imageRef,
		Capacity:    capacity,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.events[ev.ID] = ev
	c.jnl.Append(stream, journal.KindEventCreated, actor.Hex(), map[string]any{
		"event":    ev.ID,
		"creator":  creator.Hex(),
		"name":     name,
		"capacity": capacity,
	})
	metrics.SetActiveEvents(c.activeCount())
	c.logger.Info().Str("event", ev.ID).Str("creator", creator.Hex()).Uint64("capacity", capacity).Msg("event created")
	return ev.ID, nil
}

// UpdateEvent replaces the descriptive fields of an event. Creator only.
func (c *Coordinator) UpdateEvent(caller identity.Address, eventID, name, description, imageRef string, capacity uint64) error {
	if name == "" {
		return ErrEmptyName
	}
	if imageRef == "" {
		return ErrEmptyImageRef
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, err := c.creatorEvent(caller, eventID)
	if err != nil {
		return err
	}
	ev.Name = name
	ev.Description = description
	ev.ImageRef = imageRef
	ev.Capacity = capacity
	ev.UpdatedAt = time.Now().UTC()
	c.jnl.Append(stream, journal.KindEventUpdated, caller.Hex(), map[string]any{
		"event":    eventID,
		"name":     name,
		"capacity": capacity,
	})
	return nil
}

// SetEventStatus activates or deactivates an event. Creator only. Setting
// the current status is a no-op.
func (c *Coordinator) SetEventStatus(caller identity.Address, eventID string, active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, err := c.creatorEvent(caller, eventID)
	if err != nil {
		return err
	}
	if ev.Active == active {
		return nil
	}
	ev.Active = active
	ev.UpdatedAt = time.Now().UTC()
	c.jnl.Append(stream, journal.KindEventStatus, caller.Hex(), map[string]any{
		"event":  eventID,
		"active": active,
	})
	metrics.SetActiveEvents(c.activeCount())
	c.logger.Info().Str("event", eventID).Bool("active", active).Msg("event status changed")
	return nil
}

// creatorEvent resolves eventID and enforces the creator gate under the
// held lock.
func (c *Coordinator) creatorEvent(caller identity.Address, eventID string) (*Event, error) {
	ev, ok := c.events[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, eventID)
	}
	if caller != ev.Creator {
		return nil, fmt.Errorf("%w: %s on event %s", ErrNotCreator, caller, eventID)
	}
	return ev, nil
}

// mintable enforces the event-side preconditions for a mint.
func mintable(ev *Event) error {
	if !ev.Active {
		return fmt.Errorf("%w: %s", ErrEventNotActive, ev.ID)
	}
	if ev.Capacity != 0 && ev.Attendees >= ev.Capacity {
		return fmt.Errorf("%w: %s at %d attendees", ErrEventFull, ev.ID, ev.Attendees)
	}
	return nil
}

// MintWithAttestation issues an attendance token for recipient at the
// given event and records the attendance attestation. Event-side
// preconditions are checked before the registry is asked to issue;
// registry errors propagate with event context attached.
func (c *Coordinator) MintWithAttestation(caller, recipient identity.Address, eventID, metadataURI string, proof []byte) (uint64, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.events[eventID]
	if !ok {
		metrics.TrackRejection("mint", "event_not_registered")
		return 0, "", fmt.Errorf("%w: %s", ErrNotRegistered, eventID)
	}
	if err := mintable(ev); err != nil {
		metrics.TrackRejection("mint", rejectionReason(err))
		return 0, "", err
	}
	tokenID, err := c.att.Issue(caller, recipient, eventID, metadataURI, proof)
	if err != nil {
		metrics.TrackRejection("mint", "registry")
		return 0, "", fmt.Errorf("event %s: %w", eventID, err)
	}
	attestationID, err := c.log.Record(c.operator, eventID, recipient, tokenID, false)
	if err != nil {
		return 0, "", fmt.Errorf("event %s: %w", eventID, err)
	}
	ev.Attendees++
	metrics.TrackIssued(eventID)
	metrics.TrackAttestation(eventID, "attendance")
	c.logger.Info().
		Str("event", eventID).
		Str("recipient", recipient.Hex()).
		Uint64("token", tokenID).
		Str("attestation", attestationID).
		Msg("attendance token minted")
	return tokenID, attestationID, nil
}

// PairWithAttestation pairs an attendance token with a collectible and
// records the upgrade attestation against the attendance token. The
// collectible registry settles payment and payouts itself; the
// coordinator must not hold its lock across that call, so the event
// check is a fail-fast gate rather than part of the pairing's critical
// section.
func (c *Coordinator) PairWithAttestation(payer identity.Address, attendanceTokenID uint64, organizer identity.Address, eventID string, payment *uint256.Int) (uint64, string, error) {
	c.mu.RLock()
	ev, ok := c.events[eventID]
	var evErr error
	if !ok {
		evErr = fmt.Errorf("%w: %s", ErrNotRegistered, eventID)
	} else if !ev.Active {
		evErr = fmt.Errorf("%w: %s", ErrEventNotActive, eventID)
	}
	c.mu.RUnlock()
	if evErr != nil {
		metrics.TrackRejection("pair", rejectionReason(evErr))
		return 0, "", evErr
	}

	collectibleID, err := c.col.Pair(payer, organizer, attendanceTokenID, payment)
	if err != nil {
		metrics.TrackRejection("pair", "registry")
		return 0, "", fmt.Errorf("event %s: %w", eventID, err)
	}
	attestationID, err := c.log.Record(c.operator, eventID, payer, attendanceTokenID, true)
	if err != nil {
		return 0, "", fmt.Errorf("event %s: %w", eventID, err)
	}
	metrics.TrackPairing(eventID)
	metrics.TrackAttestation(eventID, "upgrade")
	c.logger.Info().
		Str("event", eventID).
		Str("payer", payer.Hex()).
		Uint64("attendance", attendanceTokenID).
		Uint64("collectible", collectibleID).
		Str("attestation", attestationID).
		Msg("attendance token paired")
	return collectibleID, attestationID, nil
}

// rejectionReason maps an event-side precondition failure to a stable
// metrics label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrNotRegistered):
		return "event_not_registered"
	case errors.Is(err, ErrEventNotActive):
		return "event_not_active"
	case errors.Is(err, ErrEventFull):
		return "event_full"
	}
	return "other"
}

// Event returns a copy of the registered event.
func (c *Coordinator) Event(eventID string) (Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ev, ok := c.events[eventID]
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrNotRegistered, eventID)
	}
	return *ev, nil
}

// Events returns copies of every registered event in no particular order.
func (c *Coordinator) Events() []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Event, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, *ev)
	}
	return out
}

// RemainingSpots reports how many more attendance tokens the event can
// take, or -1 for unlimited capacity. Capacity lowered beneath the
// current attendee count reads as zero, not negative.
func (c *Coordinator) RemainingSpots(eventID string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ev, ok := c.events[eventID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotRegistered, eventID)
	}
	if ev.Capacity == 0 {
		return -1, nil
	}
	if ev.Attendees >= ev.Capacity {
		return 0, nil
	}
	return int64(ev.Capacity) - int64(ev.Attendees), nil
}

// AttendeeCount reports how many attendance tokens were minted through
// this coordinator for the event.
func (c *Coordinator) AttendeeCount(eventID string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ev, ok := c.events[eventID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotRegistered, eventID)
	}
	return ev.Attendees, nil
}

// activeCount counts active events under the held lock.
func (c *Coordinator) activeCount() int {
	n := 0
	for _, ev := range c.events {
		if ev.Active {
			n++
		}
	}
	return n
}
