// pkg/nvidia/verify/verify.go

package verify

import (
	"context"
	"strings"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/host"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/telemetry"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Gate runs the end-to-end capability test.
type Gate struct {
	runner host.CapabilityRunner
}

// New returns a Gate using runner.
func New(runner host.CapabilityRunner) *Gate {
	return &Gate{runner: runner}
}

// Run executes the capability command once. Pass or fail is decided by
// exit status alone; the output is never parsed. On failure the error text
// is appended to the captured output.
func (g *Gate) Run(ctx context.Context) nvidia.VerificationResult {
	ctx, span := telemetry.Start(ctx, "verify.Gate.Run")
	defer span.End()
	logger := otelzap.Ctx(ctx)

	out, err := g.runner.Run(ctx)
	out = strings.TrimSpace(out)
	span.SetAttributes(attribute.Bool("passed", err == nil))

	if err != nil {
		logger.Warn("Capability test failed", zap.Error(err))
		if out == "" {
			out = err.Error()
		} else {
			out = out + "\n" + err.Error()
		}
		return nvidia.VerificationResult{Passed: false, Output: out}
	}

	logger.Info("Capability test passed")
	return nvidia.VerificationResult{Passed: true, Output: out}
}
