package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/keepsake-xyz/go-keepsake/journal"
	"github.com/keepsake-xyz/go-keepsake/splitproof"
)

func audit(args []string) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	workers := fs.Int("workers", 4, "Concurrent proof workers")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: keepsake audit <journal.jsonl|journal.db> [options]

Prove every fee distribution recorded in a journal. Each distribution is
re-derived from the event's attrs and proven against the floor-division
rule; a distribution that cannot be proven was not computed by the
registry's split.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("journal file required")
	}

	loaded, err := loadJournal(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	jnl := journal.FromEvents(loaded)

	fmt.Printf("Compiling fee-split circuit...\n")
	prover, err := splitproof.NewSplitProver()
	if err != nil {
		return err
	}

	results := prover.AuditJournal(jnl, *workers)
	if len(results) == 0 {
		fmt.Println("No fee distributions in journal")
		return nil
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Printf("FAIL  seq %-5d %v\n", res.Seq, res.Err)
			continue
		}
		fmt.Printf("OK    seq %-5d %d public inputs, %d constraints\n",
			res.Seq, len(res.Proof.PublicInputs), res.Proof.Constraints)
	}
	fmt.Printf("\n%d distributions, %d failed\n", len(results), failed)
	if failed > 0 {
		return fmt.Errorf("%d distributions failed audit", failed)
	}
	return nil
}
