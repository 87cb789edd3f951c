package consistency

import (
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/go-keepsake/attendance"
	"github.com/keepsake-xyz/go-keepsake/collectible"
	"github.com/keepsake-xyz/go-keepsake/coordinator"
	"github.com/keepsake-xyz/go-keepsake/identity"
	"github.com/keepsake-xyz/go-keepsake/journal"
	"github.com/keepsake-xyz/go-keepsake/ledger"
)

var (
	admin     = identity.Address{0x01}
	holder    = identity.Address{0x02}
	organizer = identity.Address{0x03}
	treasury  = identity.Address{0x04}
	escrow    = identity.Address{0x05}
)

type rig struct {
	led *ledger.Memory
	att *attendance.Registry
	col *collectible.Registry
	co  *coordinator.Coordinator
	jnl *journal.Journal
}

func newRig(t *testing.T, burnOnPair bool) *rig {
	t.Helper()
	jnl := journal.New()
	led := ledger.NewMemory()
	att := attendance.New(admin, attendance.ModeAllowList, jnl)
	if err := att.AddMinter(admin, admin); err != nil {
		t.Fatalf("AddMinter() error = %v", err)
	}
	col, err := collectible.New(admin, escrow, collectible.Config{
		Treasury:   treasury,
		Fee:        uint256.NewInt(1000),
		Split:      collectible.Split{TreasuryBps: 3000, OrganizerBps: 7000},
		BurnOnPair: burnOnPair,
	}, led, att, jnl)
	if err != nil {
		t.Fatalf("collectible.New() error = %v", err)
	}
	if burnOnPair {
		if err := att.SetVoider(admin, col.Account()); err != nil {
			t.Fatalf("SetVoider() error = %v", err)
		}
	}
	co, err := coordinator.New(coordinator.Config{
		Operator:    admin,
		Attendance:  att,
		Collectible: col,
		Journal:     jnl,
	})
	if err != nil {
		t.Fatalf("coordinator.New() error = %v", err)
	}
	return &rig{led: led, att: att, col: col, co: co, jnl: jnl}
}

// run registers one event and drives mints mints and pairs pairings
// through the coordinator.
func (r *rig) run(t *testing.T, capacity uint64, mints, pairs int) {
	t.Helper()
	eventID, err := r.co.CreateEvent(admin, "Gopher Meetup", "monthly", "ipfs://banner", capacity)
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	for i := 0; i < mints; i++ {
		h := identity.Address{0xA0, byte(i + 1)}
		tokenID, _, err := r.co.MintWithAttestation(admin, h, eventID, "ipfs://meta", nil)
		if err != nil {
			t.Fatalf("MintWithAttestation() error = %v", err)
		}
		if i < pairs {
			r.led.Credit(h, uint256.NewInt(1000))
			if _, _, err := r.co.PairWithAttestation(h, tokenID, organizer, eventID, uint256.NewInt(1000)); err != nil {
				t.Fatalf("PairWithAttestation() error = %v", err)
			}
		}
	}
}

func (r *rig) deployment() Deployment {
	return Deployment{
		Journal:      r.jnl,
		Attendance:   r.att,
		Collectible:  r.col,
		Attestations: r.co.Attestations(),
	}
}

func hasCategory(issues []Issue, category string) bool {
	for _, i := range issues {
		if i.Category == category {
			return true
		}
	}
	return false
}

func TestCheckCleanDeployment(t *testing.T) {
	r := newRig(t, false)
	r.run(t, 10, 3, 2)

	res := NewChecker(r.deployment()).Check()
	if !res.Valid {
		t.Fatalf("Check() invalid, errors = %+v", res.Errors)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %+v, want none", res.Warnings)
	}
	s := res.Summary
	if s.Issued != 3 || s.Paired != 2 || s.Distributions != 2 || s.Attestations != 5 {
		t.Errorf("summary = %+v, want 3 issued, 2 paired, 2 distributions, 5 attestations", s)
	}
	if !s.Conserved {
		t.Error("Conserved = false for a clean deployment")
	}
	if !hasCategory(res.Info, "distribution") {
		t.Error("no distribution info for a deployment with pairings")
	}
}

func TestCheckBurnOnPairDeployment(t *testing.T) {
	r := newRig(t, true)
	r.run(t, 0, 2, 1)

	res := NewChecker(r.deployment()).Check()
	if !res.Valid {
		t.Fatalf("Check() invalid, errors = %+v", res.Errors)
	}
	if res.Summary.Voided != 1 {
		t.Errorf("Voided = %d, want 1", res.Summary.Voided)
	}
}

func TestCheckAfterJSONLRoundTrip(t *testing.T) {
	r := newRig(t, false)
	r.run(t, 10, 3, 2)

	path := filepath.Join(t.TempDir(), "journal.jsonl")
	if err := journal.ExportJSONL(path, r.jnl.Events()); err != nil {
		t.Fatalf("ExportJSONL() error = %v", err)
	}
	loaded, err := journal.ImportJSONL(path)
	if err != nil {
		t.Fatalf("ImportJSONL() error = %v", err)
	}

	dep := r.deployment()
	dep.Journal = journal.FromEvents(loaded)
	res := NewChecker(dep).Check()
	if !res.Valid {
		t.Fatalf("Check() invalid after round trip, errors = %+v", res.Errors)
	}
	if res.Summary.Issued != 3 || res.Summary.Paired != 2 {
		t.Errorf("summary = %+v, want 3 issued, 2 paired", res.Summary)
	}
}

func TestCheckEmptyJournal(t *testing.T) {
	res := NewChecker(Deployment{}).Check()
	if !res.Valid {
		t.Fatalf("empty journal invalid, errors = %+v", res.Errors)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings = %+v, want exactly the empty-journal warning", res.Warnings)
	}
}

func TestCheckForgedDistribution(t *testing.T) {
	appendPrefix := func(jnl *journal.Journal) {
		jnl.Append("attendance", journal.KindTokenIssued, admin.Hex(), map[string]any{
			"token": uint64(1), "recipient": holder.Hex(), "event": "evt:x", "uri": "ipfs://m",
		})
		jnl.Append("collectible", journal.KindCollectiblePaired, holder.Hex(), map[string]any{
			"attendance_token": uint64(1), "collectible": uint64(1), "payer": holder.Hex(), "fee": "1000",
		})
	}

	t.Run("skimmed payout", func(t *testing.T) {
		jnl := journal.New()
		appendPrefix(jnl)
		jnl.Append("collectible", journal.KindFeeDistributed, holder.Hex(), map[string]any{
			"organizer": organizer.Hex(), "fee": "1000", "treasury_bps": uint64(3000),
			"treasury_amount": "100", "organizer_amount": "800",
		})
		res := NewChecker(Deployment{Journal: jnl}).Check()
		if res.Valid {
			t.Fatal("skimmed distribution passed")
		}
		if res.Summary.Conserved {
			t.Error("Conserved = true for a skimmed distribution")
		}
		if !hasCategory(res.Errors, "distribution") {
			t.Errorf("errors = %+v, want a distribution error", res.Errors)
		}
	})

	t.Run("conserving but off schedule", func(t *testing.T) {
		jnl := journal.New()
		appendPrefix(jnl)
		jnl.Append("collectible", journal.KindFeeDistributed, holder.Hex(), map[string]any{
			"organizer": organizer.Hex(), "fee": "1000", "treasury_bps": uint64(3000),
			"treasury_amount": "301", "organizer_amount": "699",
		})
		res := NewChecker(Deployment{Journal: jnl}).Check()
		if res.Valid {
			t.Fatal("off-schedule distribution passed")
		}
		if len(res.Errors) != 1 {
			t.Errorf("errors = %+v, want exactly the schedule error", res.Errors)
		}
	})
}

func TestCheckDuplicatePairing(t *testing.T) {
	jnl := journal.New()
	jnl.Append("attendance", journal.KindTokenIssued, admin.Hex(), map[string]any{
		"token": uint64(1), "recipient": holder.Hex(), "event": "evt:x", "uri": "ipfs://m",
	})
	for _, colID := range []uint64{1, 2} {
		jnl.Append("collectible", journal.KindCollectiblePaired, holder.Hex(), map[string]any{
			"attendance_token": uint64(1), "collectible": colID, "payer": holder.Hex(), "fee": "1000",
		})
		jnl.Append("collectible", journal.KindFeeDistributed, holder.Hex(), map[string]any{
			"organizer": organizer.Hex(), "fee": "1000", "treasury_bps": uint64(3000),
			"treasury_amount": "300", "organizer_amount": "700",
		})
	}

	res := NewChecker(Deployment{Journal: jnl}).Check()
	if res.Valid {
		t.Fatal("double pairing passed")
	}
	if len(res.Errors) != 1 || !hasCategory(res.Errors, "pairing") {
		t.Errorf("errors = %+v, want exactly the double-pairing error", res.Errors)
	}
}

func TestCheckDoubleIssuance(t *testing.T) {
	t.Run("second live token for a slot", func(t *testing.T) {
		jnl := journal.New()
		for _, id := range []uint64{1, 2} {
			jnl.Append("attendance", journal.KindTokenIssued, admin.Hex(), map[string]any{
				"token": id, "recipient": holder.Hex(), "event": "evt:x", "uri": "ipfs://m",
			})
		}
		res := NewChecker(Deployment{Journal: jnl}).Check()
		if res.Valid {
			t.Fatal("duplicate live issuance passed")
		}
		if len(res.Errors) != 1 || !hasCategory(res.Errors, "issuance") {
			t.Errorf("errors = %+v, want exactly the duplicate-guard error", res.Errors)
		}
	})

	t.Run("token id reused", func(t *testing.T) {
		jnl := journal.New()
		jnl.Append("attendance", journal.KindTokenIssued, admin.Hex(), map[string]any{
			"token": uint64(1), "recipient": holder.Hex(), "event": "evt:x", "uri": "ipfs://m",
		})
		jnl.Append("attendance", journal.KindTokenIssued, admin.Hex(), map[string]any{
			"token": uint64(1), "recipient": organizer.Hex(), "event": "evt:y", "uri": "ipfs://m",
		})
		res := NewChecker(Deployment{Journal: jnl}).Check()
		if res.Valid {
			t.Fatal("reused token id passed")
		}
	})

	t.Run("void then reissue is clean", func(t *testing.T) {
		jnl := journal.New()
		jnl.Append("attendance", journal.KindTokenIssued, admin.Hex(), map[string]any{
			"token": uint64(1), "recipient": holder.Hex(), "event": "evt:x", "uri": "ipfs://m",
		})
		jnl.Append("attendance", journal.KindTokenVoided, admin.Hex(), map[string]any{
			"token": uint64(1), "holder": holder.Hex(), "event": "evt:x",
		})
		jnl.Append("attendance", journal.KindTokenIssued, admin.Hex(), map[string]any{
			"token": uint64(2), "recipient": holder.Hex(), "event": "evt:x", "uri": "ipfs://m",
		})
		res := NewChecker(Deployment{Journal: jnl}).Check()
		if !res.Valid {
			t.Fatalf("void then reissue invalid, errors = %+v", res.Errors)
		}
	})
}

func TestCheckVoidAnomalies(t *testing.T) {
	t.Run("void of unknown token", func(t *testing.T) {
		jnl := journal.New()
		jnl.Append("attendance", journal.KindTokenVoided, admin.Hex(), map[string]any{
			"token": uint64(9), "holder": holder.Hex(), "event": "evt:x",
		})
		res := NewChecker(Deployment{Journal: jnl}).Check()
		if res.Valid {
			t.Fatal("void of unknown token passed")
		}
	})

	t.Run("double void", func(t *testing.T) {
		jnl := journal.New()
		jnl.Append("attendance", journal.KindTokenIssued, admin.Hex(), map[string]any{
			"token": uint64(1), "recipient": holder.Hex(), "event": "evt:x", "uri": "ipfs://m",
		})
		for i := 0; i < 2; i++ {
			jnl.Append("attendance", journal.KindTokenVoided, admin.Hex(), map[string]any{
				"token": uint64(1), "holder": holder.Hex(), "event": "evt:x",
			})
		}
		res := NewChecker(Deployment{Journal: jnl}).Check()
		if res.Valid {
			t.Fatal("double void passed")
		}
	})
}

func TestCheckCapacity(t *testing.T) {
	created := func(jnl *journal.Journal, id string, capacity uint64) {
		jnl.Append("coordinator", journal.KindEventCreated, admin.Hex(), map[string]any{
			"event": id, "creator": admin.Hex(), "name": "Meetup", "capacity": capacity,
		})
	}
	issue := func(jnl *journal.Journal, id uint64, eventRef string) {
		jnl.Append("attendance", journal.KindTokenIssued, admin.Hex(), map[string]any{
			"token": id, "recipient": identity.Address{0xA0, byte(id)}.Hex(), "event": eventRef, "uri": "ipfs://m",
		})
	}

	t.Run("overflow detected", func(t *testing.T) {
		jnl := journal.New()
		created(jnl, "evt:cap", 2)
		for id := uint64(1); id <= 3; id++ {
			issue(jnl, id, "evt:cap")
		}
		res := NewChecker(Deployment{Journal: jnl}).Check()
		if res.Valid {
			t.Fatal("capacity overflow passed")
		}
		if !hasCategory(res.Errors, "capacity") {
			t.Errorf("errors = %+v, want a capacity error", res.Errors)
		}
	})

	t.Run("raise then fill is clean", func(t *testing.T) {
		jnl := journal.New()
		created(jnl, "evt:cap", 1)
		issue(jnl, 1, "evt:cap")
		jnl.Append("coordinator", journal.KindEventUpdated, admin.Hex(), map[string]any{
			"event": "evt:cap", "name": "Meetup", "capacity": uint64(3),
		})
		issue(jnl, 2, "evt:cap")
		issue(jnl, 3, "evt:cap")
		res := NewChecker(Deployment{Journal: jnl}).Check()
		if !res.Valid {
			t.Fatalf("raised capacity invalid, errors = %+v", res.Errors)
		}
	})

	t.Run("unregistered event ref ignored", func(t *testing.T) {
		jnl := journal.New()
		issue(jnl, 1, "offsite-workshop")
		res := NewChecker(Deployment{Journal: jnl}).Check()
		if !res.Valid {
			t.Fatalf("standalone issuance invalid, errors = %+v", res.Errors)
		}
	})
}

func TestCheckUpgradeLineage(t *testing.T) {
	issue := func(jnl *journal.Journal, id uint64) {
		jnl.Append("attendance", journal.KindTokenIssued, admin.Hex(), map[string]any{
			"token": id, "recipient": identity.Address{0xA0, byte(id)}.Hex(), "event": "evt:x", "uri": "ipfs://m",
		})
	}
	upgrade := func(jnl *journal.Journal, tokenID uint64) {
		jnl.Append("attestation", journal.KindAttestationRecorded, admin.Hex(), map[string]any{
			"attestation": "att:deadbeef", "event": "evt:x",
			"holder": identity.Address{0xA0, byte(tokenID)}.Hex(), "token": tokenID, "upgrade": true,
		})
	}

	t.Run("no pairings at all warns", func(t *testing.T) {
		jnl := journal.New()
		issue(jnl, 1)
		upgrade(jnl, 1)
		res := NewChecker(Deployment{Journal: jnl}).Check()
		if !res.Valid {
			t.Fatalf("partial stream invalid, errors = %+v", res.Errors)
		}
		if !hasCategory(res.Warnings, "attestation") {
			t.Errorf("warnings = %+v, want a partial-stream warning", res.Warnings)
		}
	})

	t.Run("upgrade of unpaired token errors", func(t *testing.T) {
		jnl := journal.New()
		issue(jnl, 1)
		issue(jnl, 2)
		jnl.Append("collectible", journal.KindCollectiblePaired, admin.Hex(), map[string]any{
			"attendance_token": uint64(1), "collectible": uint64(1), "payer": admin.Hex(), "fee": "1000",
		})
		jnl.Append("collectible", journal.KindFeeDistributed, admin.Hex(), map[string]any{
			"organizer": organizer.Hex(), "fee": "1000", "treasury_bps": uint64(3000),
			"treasury_amount": "300", "organizer_amount": "700",
		})
		upgrade(jnl, 2)
		res := NewChecker(Deployment{Journal: jnl}).Check()
		if res.Valid {
			t.Fatal("unpaired upgrade passed")
		}
		if !hasCategory(res.Errors, "attestation") {
			t.Errorf("errors = %+v, want an attestation error", res.Errors)
		}
	})
}

func TestCheckRegistryCrossChecks(t *testing.T) {
	r := newRig(t, false)
	r.run(t, 10, 2, 1)

	// A forged issuance the registry never performed.
	r.jnl.Append("attendance", journal.KindTokenIssued, admin.Hex(), map[string]any{
		"token": uint64(99), "recipient": holder.Hex(), "event": "evt:forged", "uri": "ipfs://m",
	})

	res := NewChecker(r.deployment()).Check()
	if res.Valid {
		t.Fatal("forged issuance passed the live cross-check")
	}
	if !hasCategory(res.Errors, "registry") {
		t.Errorf("errors = %+v, want registry errors", res.Errors)
	}
}

func TestCheckReorderedStream(t *testing.T) {
	r := newRig(t, false)
	r.run(t, 0, 2, 0)

	events := r.jnl.Events()
	events[0], events[len(events)-1] = events[len(events)-1], events[0]
	res := NewChecker(Deployment{Journal: journal.FromEvents(events)}).Check()
	if res.Valid {
		t.Fatal("reordered stream passed")
	}
	if !hasCategory(res.Errors, "journal") {
		t.Errorf("errors = %+v, want a journal error", res.Errors)
	}
}
