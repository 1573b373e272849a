// pkg/nvidia/outcome.go

package nvidia

// Outcome is the terminal classification of a run.
type Outcome string

const (
	OutcomeHealthy                   Outcome = "healthy"
	OutcomeRepaired                  Outcome = "repaired"
	OutcomeIssuesFound               Outcome = "issues-found"
	OutcomeConflictUnresolved        Outcome = "conflict-unresolved"
	OutcomeVerificationFailed        Outcome = "verification-failed"
	OutcomeUnrecoverablePrecondition Outcome = "unrecoverable-precondition"
	OutcomeInterrupted               Outcome = "interrupted"
)

// Success reports whether the outcome should exit 0.
func (o Outcome) Success() bool {
	return o == OutcomeHealthy || o == OutcomeRepaired
}

// ExitCode maps the outcome to the process exit status.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeHealthy, OutcomeRepaired:
		return 0
	case OutcomeUnrecoverablePrecondition:
		return 4
	case OutcomeInterrupted:
		return 130
	default:
		return 1
	}
}
