// pkg/nvidia/json.go

package nvidia

import (
	"encoding/json"
	"time"
)

type reportJSON struct {
	ID           string               `json:"id"`
	Mode         Mode                 `json:"mode"`
	Kernel       string               `json:"kernel,omitempty"`
	StartedAt    time.Time            `json:"started_at"`
	FinishedAt   time.Time            `json:"finished_at"`
	Outcome      Outcome              `json:"outcome"`
	Checks       []CheckResult        `json:"checks"`
	Remediations []RemediationOutcome `json:"remediations"`
	FixesApplied int                  `json:"fixes_applied"`
	FixSummary   string               `json:"fix_summary"`
	Conflict     *ConflictBranch      `json:"conflict,omitempty"`
	Verification *VerificationResult  `json:"verification"`
	Guidance     []string             `json:"guidance,omitempty"`
}

// MarshalJSON renders the report for --json output.
func (r *RunReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		ID:           r.ID,
		Mode:         r.Mode,
		Kernel:       r.Kernel,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Outcome:      r.outcome,
		Checks:       r.Checks(),
		Remediations: r.Remediations(),
		FixesApplied: r.ledger.Count(),
		FixSummary:   r.ledger.Summary(),
		Conflict:     r.conflict,
		Verification: r.verification,
		Guidance:     r.Guidance(),
	})
}
