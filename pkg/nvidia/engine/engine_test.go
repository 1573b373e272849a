package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nv_err"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/config"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/diagnose"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/host"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/testutil"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap/zaptest"
)

func run(t *testing.T, f *testutil.FakeMachine, cfg config.Config, mode nvidia.Mode) *nvidia.RunReport {
	t.Helper()
	otelzap.ReplaceGlobals(otelzap.New(zaptest.NewLogger(t)))

	p, err := Build(&cfg, f.Machine(), host.FamilyDebian, diagnose.WithSleeper(f.Sleep))
	require.NoError(t, err)
	return p.Run(context.Background(), mode)
}

func TestBuildHealthyMachine(t *testing.T) {
	f := testutil.NewHealthyMachine()
	r := run(t, f, config.Defaults(), nvidia.ModeFix)

	assert.Equal(t, nvidia.OutcomeHealthy, r.Outcome())
	assert.NoError(t, Result(r))
}

func TestBuildRepairsUnloadedModule(t *testing.T) {
	f := testutil.NewHealthyMachine()
	f.Loaded.Remove("nvidia")

	r := run(t, f, config.Defaults(), nvidia.ModeFix)

	assert.Equal(t, nvidia.OutcomeRepaired, r.Outcome())
	assert.Equal(t, 1, r.FixCount())
	assert.Contains(t, f.Calls, "load nvidia")
	assert.NoError(t, Result(r))
}

func TestBuildUsesFamilyDriverPackage(t *testing.T) {
	f := testutil.NewHealthyMachine()
	f.Installed = map[string]string{}

	r := run(t, f, config.Defaults(), nvidia.ModeDiagnose)

	check, ok := r.Check(nvidia.CheckDriverPackage)
	require.True(t, ok)
	assert.False(t, check.OK())
	assert.Contains(t, check.Detail, config.DefaultDebianDriver)
}

func TestBuildRejectsBadVersionFloor(t *testing.T) {
	cfg := config.Defaults()
	cfg.MinDriverVersion = "not-a-version"

	_, err := Build(&cfg, testutil.NewHealthyMachine().Machine(), host.FamilyDebian)
	require.Error(t, err)
	assert.NotEmpty(t, cerr.GetAllHints(err))
}

func TestResult(t *testing.T) {
	tests := []struct {
		outcome  nvidia.Outcome
		wantCode int
	}{
		{nvidia.OutcomeHealthy, 0},
		{nvidia.OutcomeRepaired, 0},
		{nvidia.OutcomeIssuesFound, 1},
		{nvidia.OutcomeConflictUnresolved, 1},
		{nvidia.OutcomeVerificationFailed, 1},
		{nvidia.OutcomeUnrecoverablePrecondition, 4},
		{nvidia.OutcomeInterrupted, 130},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			r := nvidia.NewRunReport(nvidia.ModeFix)
			r.AddGuidance("Reboot the machine")
			r.Finalize(tt.outcome)

			err := Result(r)
			assert.Equal(t, tt.wantCode, nv_err.GetExitCode(err))
			assert.Equal(t, tt.outcome.ExitCode(), nv_err.GetExitCode(err))
		})
	}
}

func TestResultCarriesGuidance(t *testing.T) {
	f := testutil.NewHealthyMachine()
	f.PCI = nil
	r := run(t, f, config.Defaults(), nvidia.ModeFix)

	err := Result(r)
	var classified *nv_err.ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, r.Guidance(), classified.Remediation)
	assert.Contains(t, err.Error(), string(nvidia.OutcomeUnrecoverablePrecondition))
}

func TestResultUnfinalized(t *testing.T) {
	err := Result(nvidia.NewRunReport(nvidia.ModeDiagnose))
	require.Error(t, err)
	assert.True(t, cerr.IsAssertionFailure(err))
}

func TestRequireRoot(t *testing.T) {
	orig := geteuid
	t.Cleanup(func() { geteuid = orig })
	ctx := context.Background()

	geteuid = func() int { return 1000 }
	assert.NoError(t, RequireRoot(ctx, nvidia.ModeDiagnose))
	err := RequireRoot(ctx, nvidia.ModeFix)
	require.Error(t, err)
	assert.Equal(t, 1, nv_err.GetExitCode(err))

	geteuid = func() int { return 0 }
	assert.NoError(t, RequireRoot(ctx, nvidia.ModeFix))
}

func TestRender(t *testing.T) {
	r := run(t, testutil.NewHealthyMachine(), config.Defaults(), nvidia.ModeDiagnose)

	var text bytes.Buffer
	require.NoError(t, Render(&text, r, false))
	assert.Contains(t, text.String(), "Outcome: healthy")

	var out bytes.Buffer
	require.NoError(t, Render(&out, r, true))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, r.ID, decoded["id"])
	assert.Equal(t, "healthy", decoded["outcome"])
}

func TestResultIsMarked(t *testing.T) {
	r := nvidia.NewRunReport(nvidia.ModeDiagnose)
	r.Finalize(nvidia.OutcomeIssuesFound)
	assert.True(t, cerr.Is(Result(r), ErrRunOutcome))
}

func TestRunLocalRejectsInvalidConfig(t *testing.T) {
	path := testutil.CreateTestFile(t, t.TempDir(), "config.yaml", "settle_interval: 1h\n", 0o644)

	err := RunLocal(context.Background(), nvidia.ModeDiagnose, RunOptions{
		Config: config.Options{ConfigFile: path, EnvFile: "/nonexistent/nvdoctor.env"},
		Out:    &bytes.Buffer{},
	})
	require.Error(t, err)
	assert.Equal(t, 2, nv_err.GetExitCode(err))
	assert.False(t, cerr.Is(err, ErrRunOutcome))
}

func TestFlagOptions(t *testing.T) {
	flags := pflag.NewFlagSet("nvdoctor", pflag.ContinueOnError)
	flags.String("config", "", "")
	flags.Bool("json", false, "")
	require.NoError(t, flags.Parse([]string{"--config", "/tmp/x.yaml", "--json"}))

	var out bytes.Buffer
	opts := FlagOptions(flags, &out)
	assert.Equal(t, "/tmp/x.yaml", opts.Config.ConfigFile)
	assert.Same(t, flags, opts.Config.Flags)
	assert.True(t, opts.JSON)
	assert.Same(t, &out, opts.Out)
}
