package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/go-keepsake/collectible"
	"github.com/keepsake-xyz/go-keepsake/splitproof"
)

func parseAmount(s string) (*uint256.Int, error) {
	amount := new(uint256.Int)
	if err := amount.SetFromDecimal(s); err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, err)
	}
	return amount, nil
}

func proveSplit(args []string) error {
	fs := flag.NewFlagSet("prove-split", flag.ExitOnError)
	feeFlag := fs.String("fee", "", "Fee in wei (required)")
	bps := fs.Uint64("bps", 0, "Treasury share in basis points (required)")
	output := fs.String("output", "", "Write the proof as JSON to this file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: keepsake prove-split --fee <wei> --bps <treasury-bps> [options]

Generate a Groth16 proof that the floor-division fee split of the given
fee is what the registry would pay out. The proof's public inputs are
(fee, treasury bps, treasury amount, organizer amount).

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Example:
  keepsake prove-split --fee 1000 --bps 3000 --output proof.json
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *feeFlag == "" || *bps == 0 {
		fs.Usage()
		return fmt.Errorf("--fee and --bps required")
	}
	if *bps >= collectible.BpsDenominator {
		return fmt.Errorf("--bps must be below %d", collectible.BpsDenominator)
	}

	fee, err := parseAmount(*feeFlag)
	if err != nil {
		return err
	}
	split := collectible.Split{
		TreasuryBps:  *bps,
		OrganizerBps: collectible.BpsDenominator - *bps,
	}
	treasury, organizer := split.Apply(fee)

	fmt.Printf("Compiling fee-split circuit...\n")
	prover, err := splitproof.NewSplitProver()
	if err != nil {
		return err
	}

	proof, err := prover.Prove(splitproof.CircuitName, splitproof.Assignment(fee, split))
	if err != nil {
		return fmt.Errorf("prove: %w", err)
	}

	fmt.Printf("Fee:              %s\n", fee.Dec())
	fmt.Printf("Treasury (%d bps): %s\n", split.TreasuryBps, treasury.Dec())
	fmt.Printf("Organizer:        %s\n", organizer.Dec())
	fmt.Printf("Constraints:      %d\n", proof.Constraints)

	if *output != "" {
		data, err := json.MarshalIndent(proof, "", "  ")
		if err != nil {
			return fmt.Errorf("encode proof: %w", err)
		}
		if err := os.WriteFile(*output, data, 0644); err != nil {
			return fmt.Errorf("write proof: %w", err)
		}
		fmt.Printf("Proof written to %s\n", *output)
	}
	return nil
}
