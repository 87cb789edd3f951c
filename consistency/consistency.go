// Package consistency provides invariant checks over a deployment's
// journal and live registries
package consistency

import (
	"github.com/keepsake-xyz/go-keepsake/attendance"
	"github.com/keepsake-xyz/go-keepsake/attestation"
	"github.com/keepsake-xyz/go-keepsake/collectible"
	"github.com/keepsake-xyz/go-keepsake/journal"
)

// Result contains the result of a consistency check
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
	Info     []Issue `json:"info,omitempty"`
	Summary  Summary `json:"summary"`
}

// Issue represents a consistency issue
type Issue struct {
	Severity   string   `json:"severity"` // "error", "warning", "info"
	Category   string   `json:"category"` // "journal", "issuance", "pairing", etc.
	Message    string   `json:"message"`
	Location   []string `json:"location,omitempty"` // Affected ids/addresses
	Suggestion string   `json:"suggestion,omitempty"`
}

// Summary provides an overview of the checked deployment
type Summary struct {
	Events        int  `json:"events"`
	Issued        int  `json:"issued"`
	Voided        int  `json:"voided"`
	Paired        int  `json:"paired"`
	Distributions int  `json:"distributions"`
	Attestations  int  `json:"attestations"`
	Errors        int  `json:"errors"`
	Warnings      int  `json:"warnings"`
	Conserved     bool `json:"conserved"`
}

// Deployment bundles what a check runs against. The journal is required;
// the registries and the attestation log are optional and enable the live
// cross-checks when present.
type Deployment struct {
	Journal      *journal.Journal
	Attendance   *attendance.Registry
	Collectible  *collectible.Registry
	Attestations *attestation.Log
}

// Checker performs consistency checks
type Checker struct {
	dep    Deployment
	result *Result
}

// NewChecker creates a checker for a deployment
func NewChecker(dep Deployment) *Checker {
	if dep.Journal == nil {
		dep.Journal = journal.New()
	}
	jnl := dep.Journal
	return &Checker{
		dep: dep,
		result: &Result{
			Valid: true,
			Summary: Summary{
				Events:        jnl.Len(),
				Issued:        len(jnl.ByKind(journal.KindTokenIssued)),
				Voided:        len(jnl.ByKind(journal.KindTokenVoided)),
				Paired:        len(jnl.ByKind(journal.KindCollectiblePaired)),
				Distributions: len(jnl.ByKind(journal.KindFeeDistributed)),
				Attestations:  len(jnl.ByKind(journal.KindAttestationRecorded)),
			},
		},
	}
}

// Check runs all consistency checks
func (c *Checker) Check() *Result {
	c.checkJournal()
	c.checkIssuance()
	c.checkPairings()
	c.checkDistributions()
	c.checkCapacity()
	c.checkAttestations()
	c.checkAttendanceState()
	c.checkCollectibleState()
	c.checkAttestationState()

	// Set overall validity
	c.result.Valid = len(c.result.Errors) == 0
	c.result.Summary.Errors = len(c.result.Errors)
	c.result.Summary.Warnings = len(c.result.Warnings)

	return c.result
}

// AddError adds an error issue
func (c *Checker) AddError(category, message string, location []string, suggestion string) {
	c.result.Errors = append(c.result.Errors, Issue{
		Severity:   "error",
		Category:   category,
		Message:    message,
		Location:   location,
		Suggestion: suggestion,
	})
}

// AddWarning adds a warning issue
func (c *Checker) AddWarning(category, message string, location []string, suggestion string) {
	c.result.Warnings = append(c.result.Warnings, Issue{
		Severity:   "warning",
		Category:   category,
		Message:    message,
		Location:   location,
		Suggestion: suggestion,
	})
}

// AddInfo adds an info issue
func (c *Checker) AddInfo(category, message string, location []string) {
	c.result.Info = append(c.result.Info, Issue{
		Severity: "info",
		Category: category,
		Message:  message,
		Location: location,
	})
}
