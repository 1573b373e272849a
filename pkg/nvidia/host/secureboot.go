// pkg/nvidia/host/secureboot.go

package host

import (
	"context"
	"strings"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/execute"
	cerr "github.com/cockroachdb/errors"
)

// SecureBootReader reports the firmware Secure Boot state. known is false
// when the state cannot be determined.
type SecureBootReader interface {
	SecureBoot(ctx context.Context) (enabled, known bool, err error)
}

// Mokutil reads Secure Boot state with mokutil --sb-state.
type Mokutil struct {
	Run Runner
}

// SecureBoot runs mokutil. A missing mokutil binary is not an error: the
// state is just unknown.
func (m *Mokutil) SecureBoot(ctx context.Context) (bool, bool, error) {
	out, err := runnerOrDefault(m.Run)(ctx, execute.Options{
		Command: "mokutil",
		Args:    []string{"--sb-state"},
		Capture: true,
	})
	if err != nil {
		if execute.IsNotFound(err) {
			return false, false, nil
		}
		// Legacy BIOS boots make mokutil exit non-zero with an EFI message
		if enabled, known := ParseSBState(out); known {
			return enabled, true, nil
		}
		return false, false, cerr.Wrap(err, "mokutil --sb-state")
	}
	enabled, known := ParseSBState(out)
	return enabled, known, nil
}

// ParseSBState reads "SecureBoot enabled" / "SecureBoot disabled".
func ParseSBState(out string) (enabled, known bool) {
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "secureboot enabled"):
		return true, true
	case strings.Contains(lower, "secureboot disabled"):
		return false, true
	case strings.Contains(lower, "efi variables are not supported"):
		return false, true
	default:
		return false, false
	}
}
