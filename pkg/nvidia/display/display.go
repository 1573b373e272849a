// pkg/nvidia/display/display.go

package display

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia"
	"github.com/charmbracelet/lipgloss"
	cerr "github.com/cockroachdb/errors"
)

var (
	ColorPrimary = lipgloss.Color("#00ffff")
	ColorSuccess = lipgloss.Color("#00ff00")
	ColorWarning = lipgloss.Color("#ffaa00")
	ColorError   = lipgloss.Color("#ff0000")
	ColorMuted   = lipgloss.Color("#666666")
)

type styles struct {
	title   lipgloss.Style
	ok      lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

// newStyles binds styles to w so colour is only emitted on terminals.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(ColorPrimary),
		ok:      r.NewStyle().Foreground(ColorSuccess),
		warning: r.NewStyle().Foreground(ColorWarning),
		failure: r.NewStyle().Bold(true).Foreground(ColorError),
		muted:   r.NewStyle().Foreground(ColorMuted),
	}
}

func (s styles) verdict(v nvidia.Verdict) lipgloss.Style {
	switch v {
	case nvidia.VerdictOK:
		return s.ok
	case nvidia.VerdictWarning:
		return s.warning
	default:
		return s.failure
	}
}

func (s styles) outcome(o nvidia.Outcome) lipgloss.Style {
	switch {
	case o.Success():
		return s.ok
	case o == nvidia.OutcomeIssuesFound:
		return s.warning
	default:
		return s.failure
	}
}

// Text renders a finalized report for a terminal.
func Text(w io.Writer, r *nvidia.RunReport) error {
	s := newStyles(w)
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", s.title.Render("NVIDIA driver "+string(r.Mode)))
	fmt.Fprintf(&b, "%s\n\n", s.muted.Render(fmt.Sprintf("run %s  kernel %s", r.ID, orUnknown(r.Kernel))))

	remediations := r.Remediations()
	for _, c := range r.Checks() {
		tag := fmt.Sprintf("[%-8s]", c.Verdict)
		fmt.Fprintf(&b, "%s %-22s %s\n", s.verdict(c.Verdict).Render(tag), c.ID.Title(), c.Detail)
	}

	if len(remediations) > 0 {
		b.WriteString("\nRemediations:\n")
		for _, o := range remediations {
			label := string(o.Action)
			if o.Target != "" {
				label += " " + o.Target
			}
			if o.Applied {
				fmt.Fprintf(&b, "  %s %s\n", s.ok.Render("applied"), label)
			} else {
				fmt.Fprintf(&b, "  %s %s: %s\n", s.failure.Render("failed "), label, o.Error)
			}
		}
	}

	if c := r.Conflict(); c != nil {
		b.WriteString("\nCompeting driver:\n")
		fmt.Fprintf(&b, "  %s blacklisted: %t\n", c.Driver, c.Phase1)
		if c.Phase2 {
			fmt.Fprintf(&b, "  %s restarted, waited %s\n", c.Service, c.Settle)
		}
		if c.Nested != nil {
			fmt.Fprintf(&b, "  nested verification passed: %t\n", c.Nested.Passed)
		}
		state := s.ok.Render("resolved")
		if !c.Resolved {
			state = s.failure.Render("unresolved")
		}
		fmt.Fprintf(&b, "  %s\n", state)
	}

	if v := r.Verification(); v != nil {
		b.WriteString("\nVerification: ")
		switch {
		case v.Skipped:
			b.WriteString(s.muted.Render("skipped"))
		case v.Passed:
			b.WriteString(s.ok.Render("passed"))
		default:
			b.WriteString(s.failure.Render("failed"))
		}
		b.WriteString("\n")
		if v.Output != "" {
			for _, line := range strings.Split(v.Output, "\n") {
				fmt.Fprintf(&b, "  %s\n", s.muted.Render(line))
			}
		}
	}

	fmt.Fprintf(&b, "\n%s\n", r.Ledger().Summary())
	for _, e := range r.Ledger().Entries() {
		fmt.Fprintf(&b, "  - %s\n", e)
	}
	fmt.Fprintf(&b, "Outcome: %s\n", s.outcome(r.Outcome()).Render(string(r.Outcome())))

	if guidance := r.Guidance(); len(guidance) > 0 {
		b.WriteString("\nNext steps:\n")
		for i, g := range guidance {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, g)
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return cerr.Wrap(err, "write report")
	}
	return nil
}

// JSON writes the report as indented JSON.
func JSON(w io.Writer, r *nvidia.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return cerr.Wrap(err, "encode report")
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
