package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/keepsake-xyz/go-keepsake/consistency"
	"github.com/keepsake-xyz/go-keepsake/journal"
)

func check(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	jsonOut := fs.Bool("json", false, "Print the full result as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: keepsake check <journal.jsonl|journal.db> [options]

Replay a persisted journal and check the invariants it should satisfy:
one live attendance token per holder and event, at most one pairing per
token, fee conservation against the floor-division schedule, event
capacity, and upgrade-attestation lineage.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Check a simulation's journal
  keepsake check journal.jsonl

  # Machine-readable result
  keepsake check journal.db --json
`)
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

	res := consistency.NewChecker(consistency.Deployment{
		Journal: journal.FromEvents(loaded),
	}).Check()

	if *jsonOut {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		printIssues("ERROR", res.Errors)
		printIssues("WARN", res.Warnings)
		printIssues("INFO", res.Info)

		s := res.Summary
		fmt.Printf("\n%d events: %d issued, %d voided, %d paired, %d distributions, %d attestations\n",
			s.Events, s.Issued, s.Voided, s.Paired, s.Distributions, s.Attestations)
		if res.Valid {
			fmt.Println("Journal is consistent")
		} else {
			fmt.Printf("%d errors, %d warnings\n", s.Errors, s.Warnings)
		}
	}

	if !res.Valid {
		return fmt.Errorf("%d consistency errors", len(res.Errors))
	}
	return nil
}

func printIssues(label string, issues []consistency.Issue) {
	for _, i := range issues {
		fmt.Printf("%-5s [%s] %s\n", label, i.Category, i.Message)
		if len(i.Location) > 0 {
			fmt.Printf("      at %s\n", strings.Join(i.Location, ", "))
		}
		if i.Suggestion != "" {
			fmt.Printf("      hint: %s\n", i.Suggestion)
		}
	}
}
