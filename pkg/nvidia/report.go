// pkg/nvidia/report.go

package nvidia

import (
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// RunReport aggregates everything one pipeline run observed and did. It is
// owned by a single run, mutated in place by each stage and read-only once
// finalized.
type RunReport struct {
	ID         string
	Mode       Mode
	Kernel     string
	StartedAt  time.Time
	FinishedAt time.Time

	checks       []CheckResult
	remediations []RemediationOutcome
	ledger       FixLedger
	conflict     *ConflictBranch
	verification *VerificationResult
	outcome      Outcome
	guidance     []string
	finalized    bool
}

// NewRunReport starts a report for one run.
func NewRunReport(mode Mode) *RunReport {
	return &RunReport{
		ID:        uuid.NewString(),
		Mode:      mode,
		StartedAt: time.Now(),
	}
}

func (r *RunReport) mustBeOpen(op string) {
	if r.finalized {
		panic(cerr.AssertionFailedf("run report %s: %s after finalize", r.ID, op))
	}
}

// AddCheck appends a check verdict.
func (r *RunReport) AddCheck(c CheckResult) {
	r.mustBeOpen("AddCheck")
	r.checks = append(r.checks, c)
}

// Record appends a remediation outcome and advances the fix ledger when the
// action was applied.
func (r *RunReport) Record(o RemediationOutcome) RemediationOutcome {
	r.mustBeOpen("Record")
	r.remediations = append(r.remediations, o)
	if o.Applied {
		r.ledger.add(o)
	}
	return o
}

// SetConflict stores the competing-driver branch record.
func (r *RunReport) SetConflict(b ConflictBranch) {
	r.mustBeOpen("SetConflict")
	r.conflict = &b
}

// SetVerification stores the final verification result. A later call
// replaces an earlier attempt; only the last one is kept.
func (r *RunReport) SetVerification(v VerificationResult) {
	r.mustBeOpen("SetVerification")
	r.verification = &v
}

// AddGuidance appends operator guidance lines, skipping duplicates.
func (r *RunReport) AddGuidance(lines ...string) {
	r.mustBeOpen("AddGuidance")
	for _, line := range lines {
		if !contains(r.guidance, line) {
			r.guidance = append(r.guidance, line)
		}
	}
}

// Finalize seals the report with its outcome.
func (r *RunReport) Finalize(o Outcome) {
	r.mustBeOpen("Finalize")
	if r.verification == nil {
		r.verification = &VerificationResult{Skipped: true, Output: "verification not run"}
	}
	r.outcome = o
	r.FinishedAt = time.Now()
	r.finalized = true
}

// Finalized reports whether the report is sealed.
func (r *RunReport) Finalized() bool { return r.finalized }

// Checks returns a copy of the check results in run order.
func (r *RunReport) Checks() []CheckResult {
	return append([]CheckResult(nil), r.checks...)
}

// Check looks up the result of one check.
func (r *RunReport) Check(id CheckID) (CheckResult, bool) {
	for _, c := range r.checks {
		if c.ID == id {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Remediations returns a copy of the remediation outcomes in order.
func (r *RunReport) Remediations() []RemediationOutcome {
	return append([]RemediationOutcome(nil), r.remediations...)
}

// Ledger exposes the fix ledger.
func (r *RunReport) Ledger() *FixLedger { return &r.ledger }

// FixCount is shorthand for Ledger().Count().
func (r *RunReport) FixCount() int { return r.ledger.Count() }

// Conflict returns the competing-driver branch, if it ran.
func (r *RunReport) Conflict() *ConflictBranch { return r.conflict }

// Verification returns the final verification result.
func (r *RunReport) Verification() *VerificationResult { return r.verification }

// Outcome returns the terminal classification; empty until finalized.
func (r *RunReport) Outcome() Outcome { return r.outcome }

// Guidance returns the operator guidance lines.
func (r *RunReport) Guidance() []string {
	return append([]string(nil), r.guidance...)
}

// Issues counts non-OK checks.
func (r *RunReport) Issues() int {
	n := 0
	for _, c := range r.checks {
		if !c.OK() {
			n++
		}
	}
	return n
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
