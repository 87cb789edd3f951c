// Package collectible implements the tradable collectible registry and the
// fee distribution performed by its paid pairing operation. Pairing
// consumes an attendance token's one upgrade eligibility, mints a
// collectible to the payer, and splits the fee between the platform
// treasury and the event organizer.
package collectible

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/go-keepsake/attendance"
	"github.com/keepsake-xyz/go-keepsake/identity"
	"github.com/keepsake-xyz/go-keepsake/journal"
	"github.com/keepsake-xyz/go-keepsake/ledger"
)

// stream names this registry in the journal.
const stream = "collectible"

// CanPair reasons.
const (
	ReasonCanPair       = "can pair"
	ReasonNotOwner      = "not owner"
	ReasonAlreadyPaired = "already paired"
	ReasonPaused        = "paused"
)

// Attendance is the slice of the attendance registry the pairing path
// consumes: the ownership predicate and, in the burn variant, the void.
type Attendance interface {
	OwnerOrDelegate(caller identity.Address, tokenID uint64) bool
	Void(caller identity.Address, tokenID uint64) error
}

var _ Attendance = (*attendance.Registry)(nil)

// Token is one collectible token.
type Token struct {
	ID        uint64
	Owner     identity.Address
	URI       string
	CreatedAt time.Time
}

// Config fixes a registry's financial parameters and pairing variant.
type Config struct {
	Treasury identity.Address
	Fee      *uint256.Int
	Split    Split

	// BurnOnPair voids the attendance token once a pairing completes. The
	// default retains it; the pairing record alone then blocks a second
	// pairing.
	BurnOnPair bool

	// BaseURI is the fallback metadata prefix for tokens without their own
	// URI.
	BaseURI string
}

// Registry owns the collectible tokens of one deployment and escrows
// pairing payments through its account identity on the ledger.
type Registry struct {
	owner      identity.Address
	account    identity.Address
	burnOnPair bool

	led ledger.Ledger
	att Attendance
	jnl *journal.Journal

	mu        sync.RWMutex
	treasury  identity.Address
	fee       *uint256.Int
	split     Split
	paused    bool
	baseURI   string
	tokens    map[uint64]*Token
	approved  map[uint64]identity.Address
	operators map[identity.Address]map[identity.Address]bool
	paired    map[uint64]uint64
	nextID    uint64
	minted    uint64
}

// New creates a registry administered by owner. The account identity holds
// escrowed payments on the ledger and must be reserved for the registry.
func New(owner, account identity.Address, cfg Config, led ledger.Ledger, att Attendance, jnl *journal.Journal) (*Registry, error) {
	if account.IsZero() {
		return nil, ErrInvalidAccount
	}
	if cfg.Treasury.IsZero() {
		return nil, ErrInvalidTreasury
	}
	if err := cfg.Split.Validate(); err != nil {
		return nil, err
	}
	fee := cfg.Fee
	if fee == nil {
		fee = uint256.NewInt(0)
	}
	if jnl == nil {
		jnl = journal.New()
	}
	return &Registry{
		owner:      owner,
		account:    account,
		burnOnPair: cfg.BurnOnPair,
		led:        led,
		att:        att,
		jnl:        jnl,
		treasury:   cfg.Treasury,
		fee:        new(uint256.Int).Set(fee),
		split:      cfg.Split,
		baseURI:    cfg.BaseURI,
		tokens:     make(map[uint64]*Token),
		approved:   make(map[uint64]identity.Address),
		operators:  make(map[identity.Address]map[identity.Address]bool),
		paired:     make(map[uint64]uint64),
	}, nil
}

// Account returns the registry's escrow identity, the address to configure
// as the attendance registry's voider in the burn-on-pair variant.
func (r *Registry) Account() identity.Address {
	return r.account
}

// pairable checks the state-conflict preconditions in pair order. Callers
// hold at least the read lock.
func (r *Registry) pairable(caller identity.Address, attendanceTokenID uint64) error {
	if cid, dup := r.paired[attendanceTokenID]; dup {
		return fmt.Errorf("%w: attendance token %d is collectible %d", ErrAlreadyPaired, attendanceTokenID, cid)
	}
	if !r.att.OwnerOrDelegate(caller, attendanceTokenID) {
		return fmt.Errorf("%w: %s does not hold attendance token %d", ErrNotOwner, caller.Hex(), attendanceTokenID)
	}
	if r.paused {
		return ErrPaused
	}
	return nil
}

// Pair executes the paid upgrade: it escrows the payment, marks the
// attendance token paired, mints a collectible to the payer, then settles
// the refund and the treasury/organizer payouts. Every payout is an
// external-effect boundary: no lock is held across ledger calls, and any
// payout failure rolls the whole operation back so the caller can safely
// resubmit.
func (r *Registry) Pair(payer, organizer identity.Address, attendanceTokenID uint64, amountPaid *uint256.Int) (uint64, error) {
	if organizer.IsZero() {
		return 0, ErrInvalidOrganizer
	}

	r.mu.RLock()
	fee := new(uint256.Int).Set(r.fee)
	if amountPaid == nil || amountPaid.Cmp(fee) < 0 {
		r.mu.RUnlock()
		paid := "0"
		if amountPaid != nil {
			paid = amountPaid.Dec()
		}
		return 0, fmt.Errorf("%w: paid %s, fee is %s", ErrInsufficientFee, paid, fee.Dec())
	}
	if err := r.pairable(payer, attendanceTokenID); err != nil {
		r.mu.RUnlock()
		return 0, err
	}
	r.mu.RUnlock()

	// Escrow the full payment before touching registry state.
	if err := r.led.Transfer(payer, r.account, amountPaid); err != nil {
		return 0, fmt.Errorf("%w: collecting payment: %v", ErrTransferFailed, err)
	}

	// Commit. The conflict checks run again under the write lock: state
	// may have moved while the payment settled. The paired mark lands
	// before the mint so a re-entrant call observes AlreadyPaired and can
	// never race to a second mint.
	r.mu.Lock()
	if err := r.pairable(payer, attendanceTokenID); err != nil {
		r.mu.Unlock()
		if rerr := r.led.Transfer(r.account, payer, amountPaid); rerr != nil {
			return 0, fmt.Errorf("%w: returning payment: %v", ErrTransferFailed, rerr)
		}
		return 0, err
	}

	r.nextID++
	collectibleID := r.nextID
	r.paired[attendanceTokenID] = collectibleID
	r.tokens[collectibleID] = &Token{
		ID:        collectibleID,
		Owner:     payer,
		CreatedAt: time.Now().UTC(),
	}
	r.minted++

	split := r.split
	treasuryAmt, organizerAmt := split.Apply(fee)
	excess := new(uint256.Int).Sub(amountPaid, fee)
	treasury := r.treasury
	r.mu.Unlock()

	type leg struct {
		to     identity.Address
		amount *uint256.Int
		what   string
	}
	var legs []leg
	if !excess.IsZero() {
		legs = append(legs, leg{payer, excess, "refunding excess"})
	}
	legs = append(legs,
		leg{treasury, treasuryAmt, "paying treasury"},
		leg{organizer, organizerAmt, "paying organizer"},
	)

	var payErr error
	done := 0
	for i, l := range legs {
		if err := r.led.Transfer(r.account, l.to, l.amount); err != nil {
			payErr = fmt.Errorf("%s: %v", l.what, err)
			done = i
			break
		}
	}

	if payErr == nil && r.burnOnPair {
		if err := r.att.Void(r.account, attendanceTokenID); err != nil {
			payErr = fmt.Errorf("voiding attendance token: %v", err)
			done = len(legs)
		}
	}

	if payErr != nil {
		// Reverse the completed legs, return the escrow, and roll the
		// commit back. A leg that cannot be reversed leaves funds with its
		// recipient or in the escrow account, never in limbo inside the
		// registry; Withdraw can sweep the account.
		for i := done - 1; i >= 0; i-- {
			_ = r.led.Transfer(legs[i].to, r.account, legs[i].amount)
		}
		_ = r.led.Transfer(r.account, payer, amountPaid)

		r.mu.Lock()
		delete(r.paired, attendanceTokenID)
		delete(r.tokens, collectibleID)
		r.minted--
		r.mu.Unlock()
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, payErr)
	}

	r.jnl.Append(stream, journal.KindCollectiblePaired, payer.Hex(), map[string]any{
		"attendance_token": attendanceTokenID,
		"collectible":      collectibleID,
		"payer":            payer.Hex(),
		"fee":              fee.Dec(),
	})
	r.jnl.Append(stream, journal.KindFeeDistributed, payer.Hex(), map[string]any{
		"organizer":        organizer.Hex(),
		"fee":              fee.Dec(),
		"treasury_bps":     split.TreasuryBps,
		"treasury_amount":  treasuryAmt.Dec(),
		"organizer_amount": organizerAmt.Dec(),
	})
	return collectibleID, nil
}

// CanPair pre-flights a pairing for caller without spending anything. The
// reason mirrors the order pair itself would fail in.
func (r *Registry) CanPair(caller identity.Address, attendanceTokenID uint64) (bool, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	err := r.pairable(caller, attendanceTokenID)
	switch {
	case err == nil:
		return true, ReasonCanPair
	case errors.Is(err, ErrAlreadyPaired):
		return false, ReasonAlreadyPaired
	case errors.Is(err, ErrNotOwner):
		return false, ReasonNotOwner
	default:
		return false, ReasonPaused
	}
}

// Transfer moves a collectible to a new owner. The caller must be the
// owner, the approved spender, or an operator of the owner.
func (r *Registry) Transfer(caller, from, to identity.Address, tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tok, ok := r.tokens[tokenID]
	if !ok {
		return fmt.Errorf("%w: token %d", ErrNotFound, tokenID)
	}
	if to.IsZero() {
		return ErrInvalidRecipient
	}
	if tok.Owner != from {
		return fmt.Errorf("%w: %s does not own token %d", ErrNotOwner, from.Hex(), tokenID)
	}
	if caller != from && r.approved[tokenID] != caller && !r.operators[from][caller] {
		return fmt.Errorf("%w: %s is neither owner nor approved", ErrNotOwner, caller.Hex())
	}

	tok.Owner = to
	delete(r.approved, tokenID)

	r.jnl.Append(stream, journal.KindCollectibleTransferred, caller.Hex(), map[string]any{
		"token": tokenID,
		"from":  from.Hex(),
		"to":    to.Hex(),
	})
	return nil
}

// Approve designates a spender for one token. Owner or operator only.
func (r *Registry) Approve(caller, spender identity.Address, tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tok, ok := r.tokens[tokenID]
	if !ok {
		return fmt.Errorf("%w: token %d", ErrNotFound, tokenID)
	}
	if caller != tok.Owner && !r.operators[tok.Owner][caller] {
		return fmt.Errorf("%w: %s may not approve token %d", ErrNotOwner, caller.Hex(), tokenID)
	}
	r.approved[tokenID] = spender
	return nil
}

// SetApprovalForAll grants or revokes operator rights over all of the
// caller's tokens.
func (r *Registry) SetApprovalForAll(caller, operator identity.Address, approved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if approved {
		if r.operators[caller] == nil {
			r.operators[caller] = make(map[identity.Address]bool)
		}
		r.operators[caller][operator] = true
		return nil
	}
	delete(r.operators[caller], operator)
	return nil
}

// SetFee updates the pairing fee. Owner only.
func (r *Registry) SetFee(caller identity.Address, fee *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return ErrUnauthorized
	}
	if fee == nil {
		fee = uint256.NewInt(0)
	}
	r.fee = new(uint256.Int).Set(fee)
	return nil
}

// SetTreasury updates the treasury payout address. Owner only.
func (r *Registry) SetTreasury(caller, treasury identity.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return ErrUnauthorized
	}
	if treasury.IsZero() {
		return ErrInvalidTreasury
	}
	r.treasury = treasury
	return nil
}

// SetSplit updates the fee split. Owner only.
func (r *Registry) SetSplit(caller identity.Address, split Split) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return ErrUnauthorized
	}
	if err := split.Validate(); err != nil {
		return err
	}
	r.split = split
	return nil
}

// SetBaseURI updates the fallback metadata prefix. Owner only.
func (r *Registry) SetBaseURI(caller identity.Address, base string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return ErrUnauthorized
	}
	r.baseURI = base
	return nil
}

// SetTokenURI sets a token's own metadata URI. Owner only.
func (r *Registry) SetTokenURI(caller identity.Address, tokenID uint64, uri string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return ErrUnauthorized
	}
	tok, ok := r.tokens[tokenID]
	if !ok {
		return fmt.Errorf("%w: token %d", ErrNotFound, tokenID)
	}
	tok.URI = uri
	return nil
}

// Pause stops pairing. Owner only.
func (r *Registry) Pause(caller identity.Address) error {
	return r.setPaused(caller, true)
}

// Unpause resumes pairing. Owner only.
func (r *Registry) Unpause(caller identity.Address) error {
	return r.setPaused(caller, false)
}

func (r *Registry) setPaused(caller identity.Address, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return ErrUnauthorized
	}
	r.paused = paused
	return nil
}

// Withdraw sweeps the escrow account's full balance to the given address.
// Funds only sit there after a payout reversal could not complete.
func (r *Registry) Withdraw(caller, to identity.Address) (*uint256.Int, error) {
	if caller != r.owner {
		return nil, ErrUnauthorized
	}
	if to.IsZero() {
		return nil, ErrInvalidRecipient
	}

	bal := r.led.BalanceOf(r.account)
	if bal.IsZero() {
		return nil, ErrNothingToWithdraw
	}
	if err := r.led.Transfer(r.account, to, bal); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return bal, nil
}

// OwnerOf returns the owner of a collectible.
func (r *Registry) OwnerOf(tokenID uint64) (identity.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.tokens[tokenID]
	if !ok {
		return identity.ZeroAddress, fmt.Errorf("%w: token %d", ErrNotFound, tokenID)
	}
	return tok.Owner, nil
}

// TokenURI returns a token's metadata URI, falling back to base-URI+id.
func (r *Registry) TokenURI(tokenID uint64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.tokens[tokenID]
	if !ok {
		return "", fmt.Errorf("%w: token %d", ErrNotFound, tokenID)
	}
	if tok.URI != "" {
		return tok.URI, nil
	}
	if r.baseURI != "" {
		return r.baseURI + strconv.FormatUint(tokenID, 10), nil
	}
	return "", nil
}

// PairedCollectible returns the collectible minted from an attendance
// token, if any.
func (r *Registry) PairedCollectible(attendanceTokenID uint64) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.paired[attendanceTokenID]
	return id, ok
}

// Fee returns a copy of the configured pairing fee.
func (r *Registry) Fee() *uint256.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return new(uint256.Int).Set(r.fee)
}

// FeeSplit returns the configured split.
func (r *Registry) FeeSplit() Split {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.split
}

// Paused reports whether pairing is paused.
func (r *Registry) Paused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}

// BurnOnPair reports which pairing variant the registry was built with.
// The variant is fixed at construction.
func (r *Registry) BurnOnPair() bool {
	return r.burnOnPair
}

// TotalMinted returns the number of collectibles in existence.
func (r *Registry) TotalMinted() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.minted
}

// BalanceOf counts the collectibles held by owner.
func (r *Registry) BalanceOf(owner identity.Address) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, tok := range r.tokens {
		if tok.Owner == owner {
			n++
		}
	}
	return n
}
