// Package attendance implements the soulbound attendance token registry:
// at most one live token per holder and event, issuance gated by an
// allow-list or by issuer signature, and no transfer path whatsoever.
package attendance

import (
	"fmt"
	"sync"
	"time"

	"github.com/keepsake-xyz/go-keepsake/identity"
	"github.com/keepsake-xyz/go-keepsake/journal"
)

// stream names this registry in the journal.
const stream = "attendance"

// Mode selects the authorization path for issuance. A registry runs in
// exactly one mode for its whole lifetime; the two paths never coexist.
type Mode int

const (
	// ModeAllowList authorizes issuance by caller identity.
	ModeAllowList Mode = iota
	// ModeSignature authorizes issuance by an issuer-signed permit.
	ModeSignature
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeAllowList:
		return "allow-list"
	case ModeSignature:
		return "signature"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Token is one attendance token. A voided token keeps its row for history
// but its owner becomes the zero address.
type Token struct {
	ID          uint64
	Owner       identity.Address
	EventRef    string
	MetadataURI string
	CreatedAt   time.Time
}

// moveKind tags the three possible ownership movements. Every ownership
// mutation routes through move; the transfer branch is statically rejected,
// which is what makes the tokens soulbound.
type moveKind int

const (
	moveMint moveKind = iota
	moveBurn
	moveTransfer
)

type holderEvent struct {
	holder   identity.Address
	eventRef string
}

// Registry owns the attendance tokens of one deployment.
type Registry struct {
	mu    sync.RWMutex
	owner identity.Address
	mode  Mode

	minters  map[identity.Address]bool
	verifier *identity.PermitVerifier
	voider   identity.Address

	tokens map[uint64]*Token
	live   map[holderEvent]uint64
	nextID uint64
	issued uint64

	jnl *journal.Journal
}

// New creates a registry administered by owner. The mode is fixed for the
// registry's lifetime. A nil journal gets replaced by a fresh one.
func New(owner identity.Address, mode Mode, jnl *journal.Journal) *Registry {
	if jnl == nil {
		jnl = journal.New()
	}
	return &Registry{
		owner:   owner,
		mode:    mode,
		minters: make(map[identity.Address]bool),
		tokens:  make(map[uint64]*Token),
		live:    make(map[holderEvent]uint64),
		jnl:     jnl,
	}
}

// Mode returns the authorization mode the registry was built with.
func (r *Registry) Mode() Mode {
	return r.mode
}

// Journal returns the journal the registry emits to.
func (r *Registry) Journal() *journal.Journal {
	return r.jnl
}

// move is the single ownership mutation entry point. Callers hold the
// write lock.
func (r *Registry) move(kind moveKind, tok *Token, to identity.Address) error {
	switch kind {
	case moveMint:
		tok.Owner = to
		r.tokens[tok.ID] = tok
		r.live[holderEvent{to, tok.EventRef}] = tok.ID
		return nil
	case moveBurn:
		delete(r.live, holderEvent{tok.Owner, tok.EventRef})
		tok.Owner = identity.ZeroAddress
		return nil
	default:
		return ErrTransferNotAllowed
	}
}

// Issue creates a token for recipient. In allow-list mode the caller must
// be an approved minter; in signature mode the proof must be the issuer's
// signature over (recipient, eventRef, metadataURI). Either way a holder
// gets at most one live token per event.
func (r *Registry) Issue(caller, recipient identity.Address, eventRef, metadataURI string, proof []byte) (uint64, error) {
	if recipient.IsZero() {
		return 0, ErrInvalidRecipient
	}
	if metadataURI == "" {
		return 0, ErrEmptyMetadataURI
	}
	if eventRef == "" {
		return 0, ErrInvalidEventRef
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.mode {
	case ModeAllowList:
		if !r.minters[caller] {
			return 0, fmt.Errorf("%w: %s is not a minter", ErrUnauthorized, caller.Hex())
		}
	case ModeSignature:
		if r.verifier == nil {
			return 0, ErrIssuerNotConfigured
		}
		permit := identity.IssuePermit{Recipient: recipient, EventRef: eventRef, MetadataURI: metadataURI}
		if !r.verifier.Verify(permit, proof) {
			return 0, ErrInvalidProof
		}
	}

	if _, exists := r.live[holderEvent{recipient, eventRef}]; exists {
		return 0, fmt.Errorf("%w: %s for %s", ErrDuplicateIssuance, recipient.Hex(), eventRef)
	}

	r.nextID++
	tok := &Token{
		ID:          r.nextID,
		EventRef:    eventRef,
		MetadataURI: metadataURI,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.move(moveMint, tok, recipient); err != nil {
		return 0, err
	}
	r.issued++

	r.jnl.Append(stream, journal.KindTokenIssued, caller.Hex(), map[string]any{
		"token":     tok.ID,
		"recipient": recipient.Hex(),
		"event":     eventRef,
		"uri":       metadataURI,
	})
	return tok.ID, nil
}

// Void burns a live token. Only the configured voider, the companion
// collectible registry in the burn-on-pair variant, may call it.
func (r *Registry) Void(caller identity.Address, tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.voider.IsZero() || caller != r.voider {
		return fmt.Errorf("%w: %s may not void", ErrUnauthorized, caller.Hex())
	}
	tok, ok := r.tokens[tokenID]
	if !ok || tok.Owner.IsZero() {
		return fmt.Errorf("%w: token %d", ErrNotFound, tokenID)
	}

	holder := tok.Owner
	if err := r.move(moveBurn, tok, identity.ZeroAddress); err != nil {
		return err
	}

	r.jnl.Append(stream, journal.KindTokenVoided, caller.Hex(), map[string]any{
		"token":  tokenID,
		"holder": holder.Hex(),
		"event":  tok.EventRef,
	})
	return nil
}

// Transfer always fails: attendance tokens never change hands.
func (r *Registry) Transfer(caller, from, to identity.Address, tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.move(moveTransfer, r.tokens[tokenID], to)
}

// SafeTransfer always fails, same as Transfer.
func (r *Registry) SafeTransfer(caller, from, to identity.Address, tokenID uint64) error {
	return r.Transfer(caller, from, to, tokenID)
}

// Approve always fails: with no transfer path there is nothing to approve,
// and even a self-approval is rejected.
func (r *Registry) Approve(caller, spender identity.Address, tokenID uint64) error {
	return ErrTransferNotAllowed
}

// SetApprovalForAll always fails, same as Approve.
func (r *Registry) SetApprovalForAll(caller, operator identity.Address, approved bool) error {
	return ErrTransferNotAllowed
}

// OwnerOrDelegate reports whether caller may spend tokenID in a pairing.
// No delegation exists on attendance tokens, so this is an ownership check;
// unknown tokens answer false rather than erroring.
func (r *Registry) OwnerOrDelegate(caller identity.Address, tokenID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.tokens[tokenID]
	return ok && !tok.Owner.IsZero() && tok.Owner == caller
}

// AddMinter adds an identity to the allow-list. Owner only. The list is
// only consulted in allow-list mode.
func (r *Registry) AddMinter(caller, minter identity.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return ErrUnauthorized
	}
	r.minters[minter] = true
	return nil
}

// RemoveMinter removes an identity from the allow-list. Owner only.
func (r *Registry) RemoveMinter(caller, minter identity.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return ErrUnauthorized
	}
	delete(r.minters, minter)
	return nil
}

// SetIssuer configures the issuer public key consulted in signature mode.
// Owner only.
func (r *Registry) SetIssuer(caller identity.Address, issuerPubKey []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return ErrUnauthorized
	}
	v, err := identity.NewPermitVerifier(issuerPubKey)
	if err != nil {
		return err
	}
	r.verifier = v
	return nil
}

// SetVoider designates the identity allowed to void tokens. Owner only.
func (r *Registry) SetVoider(caller, voider identity.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return ErrUnauthorized
	}
	r.voider = voider
	return nil
}

// OwnerOf returns the holder of a live token.
func (r *Registry) OwnerOf(tokenID uint64) (identity.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.tokens[tokenID]
	if !ok || tok.Owner.IsZero() {
		return identity.ZeroAddress, fmt.Errorf("%w: token %d", ErrNotFound, tokenID)
	}
	return tok.Owner, nil
}

// TokenURI returns the metadata URI of a live token.
func (r *Registry) TokenURI(tokenID uint64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.tokens[tokenID]
	if !ok || tok.Owner.IsZero() {
		return "", fmt.Errorf("%w: token %d", ErrNotFound, tokenID)
	}
	return tok.MetadataURI, nil
}

// Token returns a copy of the token record, voided tokens included.
func (r *Registry) Token(tokenID uint64) (Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.tokens[tokenID]
	if !ok {
		return Token{}, fmt.Errorf("%w: token %d", ErrNotFound, tokenID)
	}
	return *tok, nil
}

// LiveTokenFor returns the live token id held by holder for eventRef.
func (r *Registry) LiveTokenFor(holder identity.Address, eventRef string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.live[holderEvent{holder, eventRef}]
	return id, ok
}

// TotalIssued returns the number of tokens ever issued, voided included.
func (r *Registry) TotalIssued() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.issued
}
