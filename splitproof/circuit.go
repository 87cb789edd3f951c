// Package splitproof generates and checks Groth16 proofs that a fee
// distribution followed the registry's floor-division rule. A proof binds
// the public tuple (fee, treasury bps, treasury amount, organizer amount)
// without revealing anything else, so a third party can audit payouts
// from the journal alone.
package splitproof

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/go-keepsake/collectible"
)

// CircuitName is the registry key for the fee-split circuit.
const CircuitName = "fee-split"

// Circuit proves treasury = floor(fee * bps / 10000) and that the two
// payouts exhaust the fee. The private remainder makes the floor division
// unique: treasury*10000 + r == fee*bps with 0 <= r < 10000 admits exactly
// one (treasury, r) pair.
type Circuit struct {
	// Public inputs
	FeeWei          frontend.Variable `gnark:",public"`
	TreasuryBps     frontend.Variable `gnark:",public"`
	TreasuryAmount  frontend.Variable `gnark:",public"`
	OrganizerAmount frontend.Variable `gnark:",public"`

	// Private remainder of fee*bps mod 10000
	Remainder frontend.Variable
}

func (c *Circuit) Define(api frontend.API) error {
	// Range checks keep the products inside the scalar field. 128 bits is
	// far beyond any realistic wei fee.
	api.ToBinary(c.FeeWei, 128)
	api.AssertIsLessOrEqual(c.TreasuryBps, big.NewInt(collectible.BpsDenominator))

	// treasury*10000 + r == fee*bps
	product := api.Mul(c.FeeWei, c.TreasuryBps)
	reconstructed := api.Add(api.Mul(c.TreasuryAmount, big.NewInt(collectible.BpsDenominator)), c.Remainder)
	api.AssertIsEqual(reconstructed, product)
	api.AssertIsLessOrEqual(c.Remainder, big.NewInt(collectible.BpsDenominator-1))

	// The two payouts account for the whole fee.
	api.AssertIsEqual(api.Add(c.TreasuryAmount, c.OrganizerAmount), c.FeeWei)
	return nil
}

// Assignment builds the full witness for an actual distribution, deriving
// the payout amounts and the private remainder from the split rule itself.
func Assignment(fee *uint256.Int, split collectible.Split) *Circuit {
	treasury, organizer := split.Apply(fee)
	product := new(big.Int).Mul(fee.ToBig(), new(big.Int).SetUint64(split.TreasuryBps))
	remainder := new(big.Int).Mod(product, big.NewInt(collectible.BpsDenominator))
	return &Circuit{
		FeeWei:          fee.ToBig(),
		TreasuryBps:     new(big.Int).SetUint64(split.TreasuryBps),
		TreasuryAmount:  treasury.ToBig(),
		OrganizerAmount: organizer.ToBig(),
		Remainder:       remainder,
	}
}

// ClaimedAssignment builds a witness for externally claimed payout
// amounts, recomputing only the remainder. Proving fails unless the claim
// matches the floor-division rule.
func ClaimedAssignment(fee *uint256.Int, treasuryBps uint64, treasuryAmount, organizerAmount *uint256.Int) *Circuit {
	product := new(big.Int).Mul(fee.ToBig(), new(big.Int).SetUint64(treasuryBps))
	remainder := new(big.Int).Mod(product, big.NewInt(collectible.BpsDenominator))
	return &Circuit{
		FeeWei:          fee.ToBig(),
		TreasuryBps:     new(big.Int).SetUint64(treasuryBps),
		TreasuryAmount:  treasuryAmount.ToBig(),
		OrganizerAmount: organizerAmount.ToBig(),
		Remainder:       remainder,
	}
}
