package consistency

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/go-keepsake/collectible"
	"github.com/keepsake-xyz/go-keepsake/identity"
	"github.com/keepsake-xyz/go-keepsake/journal"
)

// checkJournal validates the stream itself: presence and strictly
// increasing sequence numbers
func (c *Checker) checkJournal() {
	events := c.dep.Journal.Events()
	if len(events) == 0 {
		c.AddWarning("journal", "Journal has no events", nil,
			"Run operations against the deployment or load a persisted journal")
		return
	}

	var prev uint64
	for _, e := range events {
		if e.Seq <= prev {
			c.AddError("journal", fmt.Sprintf("Sequence %d follows %d", e.Seq, prev),
				[]string{seqLoc(e.Seq)}, "Reload the journal from its sink in sequence order")
		}
		prev = e.Seq
	}
}

// checkIssuance replays issuance and voiding and verifies the one live
// token per holder and event rule held at every step
func (c *Checker) checkIssuance() {
	type slot struct {
		holder string
		event  string
	}
	live := make(map[slot]uint64)  // occupied slot -> live token id
	state := make(map[uint64]slot) // live token id -> its slot
	seen := make(map[uint64]bool)  // every id ever issued

	for _, e := range c.dep.Journal.Events() {
		switch e.Kind {
		case journal.KindTokenIssued:
			id, okID := uintAttr(e.Attrs, "token")
			recipient, okR := strAttr(e.Attrs, "recipient")
			eventRef, okE := strAttr(e.Attrs, "event")
			if !okID || !okR || !okE {
				c.AddError("journal", fmt.Sprintf("Issuance at seq %d is missing token, recipient or event attrs", e.Seq),
					[]string{seqLoc(e.Seq)}, "Re-export the journal from its source")
				continue
			}
			if seen[id] {
				c.AddError("issuance", fmt.Sprintf("Token %d issued twice (again at seq %d)", id, e.Seq),
					[]string{tokenLoc(id)}, "Check that the journal is from a single deployment")
			}
			seen[id] = true
			s := slot{recipient, eventRef}
			if prev, dup := live[s]; dup {
				c.AddError("issuance", fmt.Sprintf("Holder %s received token %d for %s while token %d was still live",
					recipient, id, eventRef, prev),
					[]string{recipient, eventRef}, "Inspect the issuing registry's duplicate guard")
			}
			live[s] = id
			state[id] = s
		case journal.KindTokenVoided:
			id, okID := uintAttr(e.Attrs, "token")
			if !okID {
				c.AddError("journal", fmt.Sprintf("Void at seq %d is missing the token attr", e.Seq),
					[]string{seqLoc(e.Seq)}, "Re-export the journal from its source")
				continue
			}
			if !seen[id] {
				c.AddError("issuance", fmt.Sprintf("Token %d voided at seq %d but never issued", id, e.Seq),
					[]string{tokenLoc(id)}, "Check the journal covers the deployment from its first event")
				continue
			}
			s, isLive := state[id]
			if !isLive {
				c.AddError("issuance", fmt.Sprintf("Token %d voided twice (again at seq %d)", id, e.Seq),
					[]string{tokenLoc(id)}, "Check the journal for replayed events")
				continue
			}
			delete(live, s)
			delete(state, id)
		}
	}
}

// checkPairings verifies every pairing consumed a distinct issued
// attendance token, minted a distinct collectible, and settled a fee
// distribution
func (c *Checker) checkPairings() {
	hasIssuance := c.result.Summary.Issued > 0
	issued := make(map[uint64]bool)
	pairedAtt := make(map[uint64]uint64) // attendance token -> collectible
	pairedCol := make(map[uint64]uint64) // collectible -> attendance token

	for _, e := range c.dep.Journal.Events() {
		switch e.Kind {
		case journal.KindTokenIssued:
			if id, ok := uintAttr(e.Attrs, "token"); ok {
				issued[id] = true
			}
		case journal.KindCollectiblePaired:
			attID, okA := uintAttr(e.Attrs, "attendance_token")
			colID, okC := uintAttr(e.Attrs, "collectible")
			if !okA || !okC {
				c.AddError("journal", fmt.Sprintf("Pairing at seq %d is missing attendance_token or collectible attrs", e.Seq),
					[]string{seqLoc(e.Seq)}, "Re-export the journal from its source")
				continue
			}
			if hasIssuance && !issued[attID] {
				c.AddError("pairing", fmt.Sprintf("Pairing at seq %d consumed attendance token %d before any issuance", e.Seq, attID),
					[]string{tokenLoc(attID)}, "Check the journal was exported in sequence order")
			}
			if prev, dup := pairedAtt[attID]; dup {
				c.AddError("pairing", fmt.Sprintf("Attendance token %d paired twice (collectibles %d and %d)", attID, prev, colID),
					[]string{tokenLoc(attID)}, "Inspect the pairing registry's already-paired guard")
			}
			if prev, dup := pairedCol[colID]; dup {
				c.AddError("pairing", fmt.Sprintf("Collectible %d minted from attendance tokens %d and %d", colID, prev, attID),
					[]string{fmt.Sprintf("collectible:%d", colID)}, "Check that the journal is from a single deployment")
			}
			pairedAtt[attID] = colID
			pairedCol[colID] = attID
		}
	}

	if paired, dist := c.result.Summary.Paired, c.result.Summary.Distributions; paired != dist {
		c.AddError("pairing", fmt.Sprintf("Found %d pairings but %d fee distributions", paired, dist),
			nil, "Every pairing settles exactly one distribution; the journal is missing events")
	}
	if c.result.Summary.Paired > 0 && !hasIssuance {
		c.AddWarning("pairing", fmt.Sprintf("Journal has %d pairings but no issuance events", c.result.Summary.Paired),
			nil, "The stream may be a partial export; pairing lineage cannot be checked")
	}
}

// checkDistributions re-derives every fee distribution and checks the
// floor-division schedule and fee conservation
func (c *Checker) checkDistributions() {
	conserved := true
	total := new(uint256.Int)

	events := c.dep.Journal.ByKind(journal.KindFeeDistributed)
	for _, e := range events {
		fee, okF := amountAttr(e.Attrs, "fee")
		treasuryAmt, okT := amountAttr(e.Attrs, "treasury_amount")
		organizerAmt, okO := amountAttr(e.Attrs, "organizer_amount")
		bps, okB := uintAttr(e.Attrs, "treasury_bps")
		if !okF || !okT || !okO || !okB {
			conserved = false
			c.AddError("journal", fmt.Sprintf("Distribution at seq %d has missing or malformed amount attrs", e.Seq),
				[]string{seqLoc(e.Seq)}, "Re-export the journal from its source")
			continue
		}

		if sum := new(uint256.Int).Add(treasuryAmt, organizerAmt); !sum.Eq(fee) {
			conserved = false
			c.AddError("distribution", fmt.Sprintf("Distribution at seq %d pays out %s of a %s fee", e.Seq, sum.Dec(), fee.Dec()),
				[]string{seqLoc(e.Seq)}, "Payouts must exhaust the fee exactly")
		}

		if bps == 0 || bps >= collectible.BpsDenominator {
			c.AddError("distribution", fmt.Sprintf("Distribution at seq %d claims %d treasury basis points", e.Seq, bps),
				[]string{seqLoc(e.Seq)},
				fmt.Sprintf("A valid split keeps both shares above zero and sums to %d", collectible.BpsDenominator))
			continue
		}
		split := collectible.Split{TreasuryBps: bps, OrganizerBps: collectible.BpsDenominator - bps}
		wantTreasury, _ := split.Apply(fee)
		if !treasuryAmt.Eq(wantTreasury) {
			conserved = false
			c.AddError("distribution", fmt.Sprintf("Distribution at seq %d pays treasury %s, the %d bps schedule says %s",
				e.Seq, treasuryAmt.Dec(), bps, wantTreasury.Dec()),
				[]string{seqLoc(e.Seq)}, "Audit the event with a fee-split proof")
		}
		total.Add(total, fee)
	}

	c.result.Summary.Conserved = conserved
	if len(events) > 0 && conserved {
		c.AddInfo("distribution",
			fmt.Sprintf("All %d distributions conserve and exhaust their fees (%s total)", len(events), total.Dec()), nil)
	}
}

// checkCapacity replays event registrations and verifies no event admitted
// an attendee past the capacity in force at the time
func (c *Checker) checkCapacity() {
	capacity := make(map[string]uint64)
	registered := make(map[string]bool)
	attendees := make(map[string]uint64)

	for _, e := range c.dep.Journal.Events() {
		switch e.Kind {
		case journal.KindEventCreated:
			id, okID := strAttr(e.Attrs, "event")
			limit, okC := uintAttr(e.Attrs, "capacity")
			if !okID || !okC {
				c.AddError("journal", fmt.Sprintf("Event registration at seq %d is missing event or capacity attrs", e.Seq),
					[]string{seqLoc(e.Seq)}, "Re-export the journal from its source")
				continue
			}
			if registered[id] {
				c.AddError("capacity", fmt.Sprintf("Event %s registered twice (again at seq %d)", id, e.Seq),
					[]string{id}, "Check that the journal is from a single deployment")
			}
			registered[id] = true
			capacity[id] = limit
		case journal.KindEventUpdated:
			id, okID := strAttr(e.Attrs, "event")
			limit, okC := uintAttr(e.Attrs, "capacity")
			if okID && okC {
				capacity[id] = limit
			}
		case journal.KindTokenIssued:
			eventRef, ok := strAttr(e.Attrs, "event")
			if !ok || !registered[eventRef] {
				continue // issued outside the coordinator
			}
			attendees[eventRef]++
			if limit := capacity[eventRef]; limit != 0 && attendees[eventRef] > limit {
				c.AddError("capacity", fmt.Sprintf("Event %s admitted attendee %d over its capacity of %d (seq %d)",
					eventRef, attendees[eventRef], limit, e.Seq),
					[]string{eventRef}, "Inspect the coordinator's capacity gate")
			}
		}
	}
}

// checkAttestations verifies attestation records are unique and every
// upgrade record traces back to a pairing
func (c *Checker) checkAttestations() {
	pairedAt := make(map[uint64]uint64) // attendance token -> pairing seq
	for _, e := range c.dep.Journal.ByKind(journal.KindCollectiblePaired) {
		if id, ok := uintAttr(e.Attrs, "attendance_token"); ok {
			if _, dup := pairedAt[id]; !dup {
				pairedAt[id] = e.Seq
			}
		}
	}
	hasPairings := c.result.Summary.Paired > 0

	seen := make(map[string]uint64)
	upgrades := 0
	for _, e := range c.dep.Journal.ByKind(journal.KindAttestationRecorded) {
		id, okID := strAttr(e.Attrs, "attestation")
		tokenID, okT := uintAttr(e.Attrs, "token")
		upgrade, okU := boolAttr(e.Attrs, "upgrade")
		if !okID || !okT || !okU {
			c.AddError("journal", fmt.Sprintf("Attestation at seq %d is missing attestation, token or upgrade attrs", e.Seq),
				[]string{seqLoc(e.Seq)}, "Re-export the journal from its source")
			continue
		}
		if prev, dup := seen[id]; dup {
			c.AddError("attestation", fmt.Sprintf("Attestation %s recorded twice (seqs %d and %d)", id, prev, e.Seq),
				[]string{id}, "Check the journal for replayed events")
		}
		seen[id] = e.Seq
		if !upgrade {
			continue
		}
		upgrades++
		if !hasPairings {
			continue
		}
		pairSeq, ok := pairedAt[tokenID]
		if !ok {
			c.AddError("attestation", fmt.Sprintf("Upgrade attestation at seq %d references attendance token %d with no pairing",
				e.Seq, tokenID),
				[]string{tokenLoc(tokenID)}, "Upgrade records are only written after a pairing settles")
		} else if pairSeq > e.Seq {
			c.AddWarning("attestation", fmt.Sprintf("Upgrade attestation at seq %d precedes its pairing at seq %d", e.Seq, pairSeq),
				[]string{tokenLoc(tokenID)}, "Check the journal was exported in sequence order")
		}
	}

	if upgrades > 0 && !hasPairings {
		c.AddWarning("attestation", fmt.Sprintf("Journal has %d upgrade attestations but no pairing events", upgrades),
			nil, "The stream may be a partial export; upgrade lineage cannot be checked")
	}
}

// checkAttendanceState cross-checks the journal against the live
// attendance registry
func (c *Checker) checkAttendanceState() {
	att := c.dep.Attendance
	if att == nil {
		return
	}
	if got, want := int(att.TotalIssued()), c.result.Summary.Issued; got != want {
		c.AddError("registry", fmt.Sprintf("Attendance registry reports %d issued tokens, journal has %d issuance events", got, want),
			nil, "Check the journal covers the registry's full history")
	}

	voided := make(map[uint64]bool)
	for _, e := range c.dep.Journal.ByKind(journal.KindTokenVoided) {
		if id, ok := uintAttr(e.Attrs, "token"); ok {
			voided[id] = true
		}
	}

	for _, e := range c.dep.Journal.ByKind(journal.KindTokenIssued) {
		id, okID := uintAttr(e.Attrs, "token")
		recipient, okR := strAttr(e.Attrs, "recipient")
		eventRef, okE := strAttr(e.Attrs, "event")
		if !okID || !okR || !okE {
			continue // reported by checkIssuance
		}
		tok, err := att.Token(id)
		if err != nil {
			c.AddError("registry", fmt.Sprintf("Token %d issued at seq %d is missing from the attendance registry", id, e.Seq),
				[]string{tokenLoc(id)}, "Check the journal belongs to this deployment")
			continue
		}
		if voided[id] {
			if !tok.Owner.IsZero() {
				c.AddError("registry", fmt.Sprintf("Token %d voided in the journal but live in the registry", id),
					[]string{tokenLoc(id)}, "Check the journal belongs to this deployment")
			}
			continue
		}
		if tok.Owner.Hex() != recipient {
			c.AddError("registry", fmt.Sprintf("Token %d held by %s, journal issued it to %s", id, tok.Owner.Hex(), recipient),
				[]string{tokenLoc(id)}, "Attendance tokens never change hands; check the journal belongs to this deployment")
			continue
		}
		holder, err := identity.ParseAddress(recipient)
		if err != nil {
			continue
		}
		if liveID, ok := att.LiveTokenFor(holder, eventRef); !ok || liveID != id {
			c.AddError("registry", fmt.Sprintf("Live index does not map %s at %s to token %d", recipient, eventRef, id),
				[]string{recipient, eventRef}, "The live index and the token table disagree")
		}
	}
}

// checkCollectibleState cross-checks the journal against the live
// collectible registry
func (c *Checker) checkCollectibleState() {
	col := c.dep.Collectible
	if col == nil {
		return
	}
	if got, want := int(col.TotalMinted()), c.result.Summary.Paired; got != want {
		c.AddError("registry", fmt.Sprintf("Collectible registry reports %d minted, journal has %d pairing events", got, want),
			nil, "Check the journal covers the registry's full history")
	}

	burnOnPair := col.BurnOnPair()
	for _, e := range c.dep.Journal.ByKind(journal.KindCollectiblePaired) {
		attID, okA := uintAttr(e.Attrs, "attendance_token")
		colID, okC := uintAttr(e.Attrs, "collectible")
		if !okA || !okC {
			continue // reported by checkPairings
		}
		mapped, ok := col.PairedCollectible(attID)
		if !ok || mapped != colID {
			c.AddError("registry", fmt.Sprintf("Pairing of attendance token %d to collectible %d is not in the registry", attID, colID),
				[]string{tokenLoc(attID)}, "Check the journal belongs to this deployment")
			continue
		}
		if _, err := col.OwnerOf(colID); err != nil {
			c.AddError("registry", fmt.Sprintf("Collectible %d paired at seq %d has no owner in the registry", colID, e.Seq),
				[]string{fmt.Sprintf("collectible:%d", colID)}, "Check the journal belongs to this deployment")
		}
		if burnOnPair && c.dep.Attendance != nil {
			if tok, err := c.dep.Attendance.Token(attID); err == nil && !tok.Owner.IsZero() {
				c.AddError("registry", fmt.Sprintf("Attendance token %d still live after its burn-on-pair pairing", attID),
					[]string{tokenLoc(attID)}, "Burn-on-pair deployments void the attendance token when pairing settles")
			}
		}
	}
}

// checkAttestationState cross-checks the journal against the live
// attestation log
func (c *Checker) checkAttestationState() {
	log := c.dep.Attestations
	if log == nil {
		return
	}
	if got, want := log.Total(), c.result.Summary.Attestations; got != want {
		c.AddError("registry", fmt.Sprintf("Attestation log holds %d records, journal has %d record events", got, want),
			nil, "Check the journal covers the log's full history")
	}

	for _, e := range c.dep.Journal.ByKind(journal.KindAttestationRecorded) {
		id, ok := strAttr(e.Attrs, "attestation")
		if !ok {
			continue // reported by checkAttestations
		}
		a, err := log.Get(id)
		if err != nil {
			c.AddError("registry", fmt.Sprintf("Attestation %s recorded at seq %d is missing from the log", id, e.Seq),
				[]string{id}, "Check the journal belongs to this deployment")
			continue
		}
		if upgrade, ok := boolAttr(e.Attrs, "upgrade"); ok && a.IsUpgrade != upgrade {
			c.AddError("registry", fmt.Sprintf("Attestation %s upgrade flag disagrees between log and journal", id),
				[]string{id}, "Check the journal belongs to this deployment")
		}
	}
}

func seqLoc(seq uint64) string {
	return fmt.Sprintf("seq:%d", seq)
}

func tokenLoc(id uint64) string {
	return fmt.Sprintf("token:%d", id)
}

// Numeric attrs arrive as uint64 from a live journal and as float64 after
// a JSONL or SQLite round trip.
func uintAttr(attrs map[string]any, key string) (uint64, bool) {
	switch v := attrs[key].(type) {
	case uint64:
		return v, true
	case int:
		return uint64(v), true
	case float64:
		return uint64(v), true
	}
	return 0, false
}

func strAttr(attrs map[string]any, key string) (string, bool) {
	s, ok := attrs[key].(string)
	return s, ok
}

func boolAttr(attrs map[string]any, key string) (bool, bool) {
	b, ok := attrs[key].(bool)
	return b, ok
}

func amountAttr(attrs map[string]any, key string) (*uint256.Int, bool) {
	s, ok := attrs[key].(string)
	if !ok {
		return nil, false
	}
	amount := new(uint256.Int)
	if err := amount.SetFromDecimal(s); err != nil {
		return nil, false
	}
	return amount, true
}
