// pkg/nvidia/ledger.go

package nvidia

import "fmt"

// FixLedger counts the fixes applied during one run. It is only advanced
// through RunReport.Record, which keeps the count equal to the number of
// applied remediation outcomes.
type FixLedger struct {
	count   int
	entries []string
}

func (l *FixLedger) add(o RemediationOutcome) {
	l.count++
	entry := string(o.Action)
	if o.Target != "" {
		entry += " " + o.Target
	}
	l.entries = append(l.entries, entry)
}

// Count returns the number of fixes applied.
func (l *FixLedger) Count() int {
	return l.count
}

// Entries lists the applied fixes in order.
func (l *FixLedger) Entries() []string {
	return append([]string(nil), l.entries...)
}

// Summary is the operator-facing count line. Its wording does not change
// with the count.
func (l *FixLedger) Summary() string {
	return fmt.Sprintf("%d automatic fixes applied", l.count)
}
