package collectible

import (
	"fmt"

	"github.com/holiman/uint256"
)

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10000

// Split is a treasury/organizer fee split in basis points.
type Split struct {
	TreasuryBps  uint64 `json:"treasury_bps"`
	OrganizerBps uint64 `json:"organizer_bps"`
}

// Validate enforces the split contract: both shares strictly positive and
// summing to exactly BpsDenominator.
func (s Split) Validate() error {
	if s.TreasuryBps == 0 || s.OrganizerBps == 0 || s.TreasuryBps+s.OrganizerBps != BpsDenominator {
		return fmt.Errorf("%w: treasury %d, organizer %d", ErrInvalidSplit, s.TreasuryBps, s.OrganizerBps)
	}
	return nil
}

// Apply divides fee into the treasury and organizer amounts. The treasury
// share rounds down; the organizer share absorbs the remainder, so the two
// sum to exactly fee for every fee value.
func (s Split) Apply(fee *uint256.Int) (treasury, organizer *uint256.Int) {
	treasury = new(uint256.Int).Mul(fee, uint256.NewInt(s.TreasuryBps))
	treasury.Div(treasury, uint256.NewInt(BpsDenominator))
	organizer = new(uint256.Int).Sub(fee, treasury)
	return treasury, organizer
}
