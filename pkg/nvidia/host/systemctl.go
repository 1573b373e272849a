// pkg/nvidia/host/systemctl.go

package host

import (
	"context"
	"fmt"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Systemctl exit codes, see systemctl(1). is-active and restart reuse the
// same numbers with different meanings.
const (
	ExitSuccess     = 0
	ExitGenericFail = 1
	ExitInactive    = 3
	ExitUnknown     = 4
	ExitNotLoaded   = 5
	ExitStartFailed = 3
)

// SystemctlCommand is a systemctl subcommand.
type SystemctlCommand string

const (
	CmdIsActive SystemctlCommand = "is-active"
	CmdRestart  SystemctlCommand = "restart"
)

// InterpretSystemctlExitCode describes an exit code for the given subcommand.
func InterpretSystemctlExitCode(cmd SystemctlCommand, exitCode int) string {
	switch cmd {
	case CmdIsActive:
		switch exitCode {
		case ExitSuccess:
			return "active"
		case ExitInactive:
			return "inactive"
		case ExitUnknown:
			return "unknown"
		case ExitNotLoaded:
			return "not loaded"
		}
	case CmdRestart:
		switch exitCode {
		case ExitSuccess:
			return "success"
		case ExitStartFailed:
			return "operation failed"
		}
	}
	return fmt.Sprintf("unknown exit code %d", exitCode)
}

// Systemctl is a ServiceController backed by systemd.
type Systemctl struct {
	Run Runner
}

// IsActive reports whether unit is active. Inactive, unknown and not-loaded
// units are simply not active; only failures to run systemctl are errors.
func (s *Systemctl) IsActive(ctx context.Context, unit string) (bool, error) {
	_, err := runnerOrDefault(s.Run)(ctx, execute.Options{
		Command: "systemctl",
		Args:    []string{string(CmdIsActive), "--quiet", unit},
	})
	if err == nil {
		return true, nil
	}
	code, ok := execute.ExitCode(err)
	if !ok {
		return false, cerr.Wrapf(err, "systemctl is-active %s", unit)
	}
	otelzap.Ctx(ctx).Debug("Service not active",
		zap.String("unit", unit),
		zap.String("state", InterpretSystemctlExitCode(CmdIsActive, code)))
	return false, nil
}

// Restart restarts unit.
func (s *Systemctl) Restart(ctx context.Context, unit string) error {
	logger := otelzap.Ctx(ctx)
	logger.Info("Restarting service", zap.String("unit", unit))

	out, err := runnerOrDefault(s.Run)(ctx, execute.Options{
		Command: "systemctl",
		Args:    []string{string(CmdRestart), unit},
		Capture: true,
	})
	if err != nil {
		state := "failed"
		if code, ok := execute.ExitCode(err); ok {
			state = InterpretSystemctlExitCode(CmdRestart, code)
		}
		logger.Warn("Service restart failed",
			zap.String("unit", unit),
			zap.String("state", state),
			zap.String("output", out))
		return cerr.WithHintf(cerr.Wrapf(err, "restart %s", unit),
			"Check the unit with: journalctl -u %s -n 50", unit)
	}
	return nil
}
