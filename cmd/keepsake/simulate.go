package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/keepsake-xyz/go-keepsake/attendance"
	"github.com/keepsake-xyz/go-keepsake/collectible"
	"github.com/keepsake-xyz/go-keepsake/consistency"
	"github.com/keepsake-xyz/go-keepsake/coordinator"
	"github.com/keepsake-xyz/go-keepsake/identity"
	"github.com/keepsake-xyz/go-keepsake/journal"
	"github.com/keepsake-xyz/go-keepsake/ledger"
)

// simEvent is one event in a scenario file.
type simEvent struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageRef    string `json:"image_ref"`
	Capacity    uint64 `json:"capacity"`
	Attendees   int    `json:"attendees"`
	Pairings    int    `json:"pairings"`
}

// simConfig is the scenario file format. Amounts are wei.
type simConfig struct {
	Fee         uint64     `json:"fee"`
	TreasuryBps uint64     `json:"treasury_bps"`
	BurnOnPair  bool       `json:"burn_on_pair"`
	Funding     uint64     `json:"funding"`
	Events      []simEvent `json:"events"`
}

func defaultConfig() simConfig {
	return simConfig{
		Fee:         1000,
		TreasuryBps: 3000,
		Funding:     2500,
		Events: []simEvent{
			{Name: "Launch Party", ImageRef: "ipfs://launch", Capacity: 0, Attendees: 5, Pairings: 3},
			{Name: "Workshop", ImageRef: "ipfs://workshop", Capacity: 10, Attendees: 4, Pairings: 2},
		},
	}
}

func simulate(args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	output := fs.String("output", "", "Write the journal as JSONL to this file")
	dbPath := fs.String("db", "", "Write the journal to this SQLite database")
	verbose := fs.Bool("verbose", false, "Log coordinator activity to stderr")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: keepsake simulate [scenario.json] [options]

Run a scenario against a fresh registry pair: register events, mint
attendance tokens, pair a subset into collectibles, and report balances.
Without a scenario file a built-in two-event scenario runs.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Scenario format:
  {
    "fee": 1000,
    "treasury_bps": 3000,
    "burn_on_pair": false,
    "funding": 2500,
    "events": [
      {"name": "Launch Party", "image_ref": "ipfs://launch",
       "capacity": 0, "attendees": 5, "pairings": 3}
    ]
  }
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := defaultConfig()
	if fs.NArg() >= 1 {
		data, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("read scenario: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parse scenario: %w", err)
		}
	}
	if cfg.TreasuryBps == 0 || cfg.TreasuryBps >= collectible.BpsDenominator {
		return fmt.Errorf("treasury_bps must be between 1 and %d", collectible.BpsDenominator-1)
	}
	if cfg.Funding == 0 {
		cfg.Funding = 2 * cfg.Fee
	}

	var (
		admin    = identity.Address{0x01}
		treasury = identity.Address{0x7E}
		escrow   = identity.Address{0xE5}
	)

	jnl := journal.New()
	led := ledger.NewMemory()
	att := attendance.New(admin, attendance.ModeAllowList, jnl)
	if err := att.AddMinter(admin, admin); err != nil {
		return err
	}
	col, err := collectible.New(admin, escrow, collectible.Config{
		Treasury: treasury,
		Fee:      uint256.NewInt(cfg.Fee),
		Split: collectible.Split{
			TreasuryBps:  cfg.TreasuryBps,
			OrganizerBps: collectible.BpsDenominator - cfg.TreasuryBps,
		},
		BurnOnPair: cfg.BurnOnPair,
	}, led, att, jnl)
	if err != nil {
		return err
	}
	if cfg.BurnOnPair {
		if err := att.SetVoider(admin, col.Account()); err != nil {
			return err
		}
	}

	coordCfg := coordinator.Config{
		Operator:    admin,
		Attendance:  att,
		Collectible: col,
		Journal:     jnl,
	}
	if *verbose {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		coordCfg.Logger = &logger
	}
	co, err := coordinator.New(coordCfg)
	if err != nil {
		return err
	}

	totalMints, totalPairs := 0, 0
	for i, ev := range cfg.Events {
		organizer := identity.Address{0x0E, byte(i + 1)}
		eventID, err := co.CreateEvent(admin, ev.Name, ev.Description, ev.ImageRef, ev.Capacity)
		if err != nil {
			return fmt.Errorf("event %q: %w", ev.Name, err)
		}

		for a := 0; a < ev.Attendees; a++ {
			holder := identity.Address{0xA0, byte(i + 1), byte(a + 1)}
			uri := fmt.Sprintf("ipfs://meta/%d/%d", i, a)
			tokenID, _, err := co.MintWithAttestation(admin, holder, eventID, uri, nil)
			if err != nil {
				return fmt.Errorf("mint %d for %q: %w", a, ev.Name, err)
			}
			totalMints++

			if a < ev.Pairings {
				led.Credit(holder, uint256.NewInt(cfg.Funding))
				if _, _, err := co.PairWithAttestation(holder, tokenID, organizer, eventID, uint256.NewInt(cfg.Fee)); err != nil {
					return fmt.Errorf("pair %d for %q: %w", a, ev.Name, err)
				}
				totalPairs++
			}
		}

		spots, err := co.RemainingSpots(eventID)
		if err != nil {
			return err
		}
		spotsLabel := fmt.Sprintf("%d", spots)
		if spots < 0 {
			spotsLabel = "unlimited"
		}
		fmt.Printf("%-16s %s  attendees=%d paired=%d spots=%s organizer=%s balance=%s\n",
			ev.Name, eventID[:12], ev.Attendees, ev.Pairings, spotsLabel,
			organizer.Hex(), led.BalanceOf(organizer).Dec())
	}

	res := consistency.NewChecker(consistency.Deployment{
		Journal:      jnl,
		Attendance:   att,
		Collectible:  col,
		Attestations: co.Attestations(),
	}).Check()
	status := "OK"
	if !res.Valid {
		status = fmt.Sprintf("%d errors (run keepsake check on the journal)", len(res.Errors))
	}

	fmt.Printf("\n=== Simulation Summary ===\n")
	fmt.Printf("Events registered:   %d\n", len(cfg.Events))
	fmt.Printf("Tokens issued:       %d\n", totalMints)
	fmt.Printf("Collectibles paired: %d\n", totalPairs)
	fmt.Printf("Attestations:        %d\n", co.Attestations().Total())
	fmt.Printf("Treasury balance:    %s\n", led.BalanceOf(treasury).Dec())
	fmt.Printf("Journal events:      %d\n", jnl.Len())
	fmt.Printf("Consistency:         %s\n", status)

	if *output != "" {
		if err := journal.ExportJSONL(*output, jnl.Events()); err != nil {
			return fmt.Errorf("write journal: %w", err)
		}
		fmt.Printf("Journal written to %s\n", *output)
	}
	if *dbPath != "" {
		sink, err := journal.OpenSQLite(*dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer sink.Close()
		if err := sink.Write(jnl.Events()); err != nil {
			return fmt.Errorf("write database: %w", err)
		}
		fmt.Printf("Journal written to %s\n", *dbPath)
	}
	return nil
}
