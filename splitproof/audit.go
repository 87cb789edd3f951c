package splitproof

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/go-keepsake/journal"
)

// AuditResult is the outcome of proving one fee-distribution journal
// event.
type AuditResult struct {
	Seq   uint64
	Proof *Proof
	Err   error
}

// AuditJournal proves every fee-distribution event in the journal and
// returns one result per event, in journal order. Proof generation is
// expensive, so events are proven by a bounded worker pool.
func (p *Prover) AuditJournal(jnl *journal.Journal, workers int) []AuditResult {
	if workers <= 0 {
		workers = 4
	}
	events := jnl.ByKind(journal.KindFeeDistributed)
	results := make([]AuditResult, len(events))

	type job struct {
		idx        int
		assignment *Circuit
	}
	jobs := make(chan job, len(events))

	for i, ev := range events {
		results[i].Seq = ev.Seq
		assignment, err := assignmentFromAttrs(ev.Attrs)
		if err != nil {
			results[i].Err = fmt.Errorf("event %d: %w", ev.Seq, err)
			continue
		}
		jobs <- job{idx: i, assignment: assignment}
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				proof, err := p.Prove(CircuitName, j.assignment)
				results[j.idx].Proof = proof
				results[j.idx].Err = err
			}
		}()
	}
	wg.Wait()
	return results
}

// assignmentFromAttrs rebuilds the claimed distribution from the attrs a
// fee-distribution event carries. Numeric attrs may arrive as float64
// after a JSONL or SQLite round trip.
func assignmentFromAttrs(attrs map[string]any) (*Circuit, error) {
	fee, err := amountAttr(attrs, "fee")
	if err != nil {
		return nil, err
	}
	treasuryAmt, err := amountAttr(attrs, "treasury_amount")
	if err != nil {
		return nil, err
	}
	organizerAmt, err := amountAttr(attrs, "organizer_amount")
	if err != nil {
		return nil, err
	}
	bps, ok := uintAttr(attrs, "treasury_bps")
	if !ok {
		return nil, fmt.Errorf("missing or invalid treasury_bps attr")
	}
	return ClaimedAssignment(fee, bps, treasuryAmt, organizerAmt), nil
}

func amountAttr(attrs map[string]any, key string) (*uint256.Int, error) {
	s, ok := attrs[key].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid %s attr", key)
	}
	amount := new(uint256.Int)
	if err := amount.SetFromDecimal(s); err != nil {
		return nil, fmt.Errorf("%s attr: %w", key, err)
	}
	return amount, nil
}

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
