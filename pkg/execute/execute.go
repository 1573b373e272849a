// pkg/execute/execute.go

package execute

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nv_err"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/telemetry"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Options describes one external command invocation. Commands are always
// exec'd directly; there is no shell mode and no retry.
type Options struct {
	Command string
	Args    []string
	Env     []string
	Capture bool          // return combined output on success
	Timeout time.Duration // default 30s
}

// Run executes a command with structured logging and returns its combined
// output. On failure the output is always returned alongside the error so
// callers can keep it for reports.
func Run(ctx context.Context, opts Options) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cmdStr := buildCommandString(opts.Command, opts.Args...)
	logger := otelzap.Ctx(ctx)

	rc, cancel := context.WithTimeout(ctx, defaultTimeout(opts.Timeout))
	defer cancel()

	rc, span := telemetry.Start(rc, "execute.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("command", opts.Command),
		attribute.String("args", strings.Join(opts.Args, " ")),
	)

	logger.Debug("Starting execution", zap.String("command", cmdStr))

	cmd := exec.CommandContext(rc, opts.Command, opts.Args...)
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := buf.String()

	if err != nil {
		span.RecordError(err)
		logger.Debug("Execution failed",
			zap.String("command", cmdStr),
			zap.String("summary", nv_err.ExtractSummary(output, 2)),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return output, cerr.Wrapf(ctx.Err(), "%s interrupted", opts.Command)
		}
		return output, cerr.Wrapf(err, "%s: %s", cmdStr, nv_err.ExtractSummary(output, 2))
	}

	logger.Debug("Execution succeeded", zap.String("command", cmdStr))
	if opts.Capture {
		return output, nil
	}
	return "", nil
}

// ExitCode returns the process exit status carried by err, if any.
func ExitCode(err error) (int, bool) {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return 0, false
}

// IsNotFound reports whether err means the binary itself was missing.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}
