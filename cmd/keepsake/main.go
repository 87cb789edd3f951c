package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "simulate":
		if err := simulate(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "events":
		if err := events(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "keygen":
		if err := keygen(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "prove-split":
		if err := proveSplit(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "verify-split":
		if err := verifySplit(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "audit":
		if err := audit(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "check":
		if err := check(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Println("keepsake version 1.0.0")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`keepsake - event-attendance token economy simulator

Usage:
  keepsake <command> [options]

Commands:
  simulate      Run a scenario: register events, mint attendance tokens, pair collectibles
  events        Show the timeline of a persisted journal
  keygen        Generate an issuer keypair for signature-gated issuance
  prove-split   Generate a Groth16 proof of one fee distribution
  verify-split  Verify a fee-split proof or a claimed distribution
  audit         Prove every fee distribution in a persisted journal
  check         Replay a persisted journal and check its invariants
  help          Show this help message
  version       Show version information

Examples:
  # Run the built-in scenario and persist the journal
  keepsake simulate --output journal.jsonl

  # Run a custom scenario into SQLite
  keepsake simulate scenario.json --db journal.db

  # Inspect what happened
  keepsake events journal.jsonl --kind fee.distributed
  keepsake check journal.jsonl

  # Prove a distribution and check it
  keepsake prove-split --fee 1000 --bps 3000 --output proof.json
  keepsake verify-split --proof proof.json

For command-specific help, run:
  keepsake <command> --help`)
}
