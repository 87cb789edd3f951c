package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/keepsake-xyz/go-keepsake/journal"
)

// loadJournal reads a persisted journal from JSONL or SQLite, chosen by
// file extension.
func loadJournal(path string) ([]journal.Event, error) {
	if strings.HasSuffix(path, ".db") || strings.HasSuffix(path, ".sqlite") {
		sink, err := journal.OpenSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		defer sink.Close()
		return sink.Load()
	}
	return journal.ImportJSONL(path)
}

func events(args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	kindFilter := fs.String("kind", "", "Filter by event kind")
	streamFilter := fs.String("stream", "", "Filter by stream")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: keepsake events <journal.jsonl|journal.db> [options]

Display the timeline of a persisted journal.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Show all events
  keepsake events journal.jsonl

  # Only fee distributions
  keepsake events journal.db --kind fee.distributed

  # Only the collectible registry's stream
  keepsake events journal.jsonl --stream collectible
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("journal file required")
	}

	all, err := loadJournal(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	var display []journal.Event
	for _, e := range all {
		if *kindFilter != "" && e.Kind != *kindFilter {
			continue
		}
		if *streamFilter != "" && e.Stream != *streamFilter {
			continue
		}
		display = append(display, e)
	}

	if len(display) == 0 {
		fmt.Println("No matching events")
		return nil
	}

	fmt.Printf("=== Journal Timeline (%d events) ===\n\n", len(display))
	for _, e := range display {
		fmt.Printf("#%-5d %s  %-12s %-24s %s\n",
			e.Seq, e.At.Format("15:04:05.000"), e.Stream, e.Kind, e.Actor)
		for key, value := range e.Attrs {
			fmt.Printf("       %s: %v\n", key, value)
		}
	}
	return nil
}
