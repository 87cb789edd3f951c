package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/keepsake-xyz/go-keepsake/splitproof"
)

func verifySplit(args []string) error {
	fs := flag.NewFlagSet("verify-split", flag.ExitOnError)
	proofFile := fs.String("proof", "", "Proof JSON produced by prove-split")
	feeFlag := fs.String("fee", "", "Fee in wei (claim mode)")
	bps := fs.Uint64("bps", 0, "Treasury share in basis points (claim mode)")
	treasuryFlag := fs.String("treasury", "", "Claimed treasury amount (claim mode)")
	organizerFlag := fs.String("organizer", "", "Claimed organizer amount (claim mode)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: keepsake verify-split (--proof <file> | --fee <wei> --bps <bps> --treasury <wei> --organizer <wei>)

With --proof, check a serialized proof against its public inputs. In
claim mode, check that the claimed amounts satisfy the floor-division
rule for the given fee and split.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *proofFile != "" {
		data, err := os.ReadFile(*proofFile)
		if err != nil {
			return fmt.Errorf("read proof: %w", err)
		}
		var proof splitproof.Proof
		if err := json.Unmarshal(data, &proof); err != nil {
			return fmt.Errorf("parse proof: %w", err)
		}
		if err := splitproof.VerifyProof(&proof); err != nil {
			return fmt.Errorf("proof INVALID: %w", err)
		}
		fmt.Println("Proof valid")
		for i, in := range proof.PublicInputs {
			fmt.Printf("  public[%d] = %s\n", i, in)
		}
		return nil
	}

	if *feeFlag == "" || *bps == 0 || *treasuryFlag == "" || *organizerFlag == "" {
		fs.Usage()
		return fmt.Errorf("either --proof or the full claim is required")
	}

	fmt.Printf("Compiling fee-split circuit...\n")
	prover, err := splitproof.NewSplitProver()
	if err != nil {
		return err
	}
	fee, err := parseAmount(*feeFlag)
	if err != nil {
		return err
	}
	treasury, err := parseAmount(*treasuryFlag)
	if err != nil {
		return err
	}
	organizer, err := parseAmount(*organizerFlag)
	if err != nil {
		return err
	}

	claim := splitproof.ClaimedAssignment(fee, *bps, treasury, organizer)
	if err := prover.Verify(splitproof.CircuitName, claim); err != nil {
		return fmt.Errorf("claim INVALID: %w", err)
	}
	fmt.Printf("Claim valid: %s of %s to treasury at %d bps, %s to organizer\n",
		treasury.Dec(), fee.Dec(), *bps, organizer.Dec())
	return nil
}
