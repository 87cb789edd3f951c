// Package ledger defines the value-transfer substrate the registries
// settle payments against, plus an in-memory implementation used by tests
// and the simulator.
package ledger

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/go-keepsake/identity"
)

// Ledger moves value between identities. Every call is an external-effect
// boundary for the registries: a transfer either completes fully before
// returning or returns an error having moved nothing.
type Ledger interface {
	// BalanceOf returns the current balance. Unknown accounts hold zero.
	BalanceOf(addr identity.Address) *uint256.Int

	// Transfer moves amount from one account to the other.
	Transfer(from, to identity.Address, amount *uint256.Int) error
}

// Memory is a mutex-guarded in-process Ledger.
type Memory struct {
	mu       sync.RWMutex
	balances map[identity.Address]*uint256.Int
}

var _ Ledger = (*Memory)(nil)

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{balances: make(map[identity.Address]*uint256.Int)}
}

// Credit mints amount into addr. Used to fund accounts before a scenario.
func (m *Memory) Credit(addr identity.Address, amount *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(addr, amount)
}

// BalanceOf returns a copy of the current balance.
func (m *Memory) BalanceOf(addr identity.Address) *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bal, ok := m.balances[addr]
	if !ok {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(bal)
}

// Transfer moves amount between accounts. Zero-amount transfers succeed
// without touching state; the zero address can never receive funds.
func (m *Memory) Transfer(from, to identity.Address, amount *uint256.Int) error {
	if to.IsZero() {
		return fmt.Errorf("%w: transfer to zero address", ErrInvalidRecipient)
	}
	if amount == nil || amount.IsZero() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s needs %s", ErrInsufficientFunds, from.Hex(), amount.Dec())
	}
	bal.Sub(bal, amount)
	m.add(to, amount)
	return nil
}

// add must be called with the write lock held.
func (m *Memory) add(addr identity.Address, amount *uint256.Int) {
	if amount == nil {
		return
	}
	bal, ok := m.balances[addr]
	if !ok {
		bal = uint256.NewInt(0)
		m.balances[addr] = bal
	}
	bal.Add(bal, amount)
}
