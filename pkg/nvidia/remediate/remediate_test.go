package remediate

import (
	"context"
	"errors"
	"testing"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settings() Settings {
	return Settings{
		TargetModule:    "nvidia",
		ModuleSet:       []string{"nvidia", "nvidia_uvm", "nvidia_drm", "nvidia_modeset"},
		CompetingDriver: "nouveau",
		DriverPackage:   "nvidia-driver-535",
	}
}

func TestActionsAreIdempotent(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(f *testutil.FakeMachine)
		apply   func(ctx context.Context, a *Actions) nvidia.RemediationOutcome
	}{
		{
			name:    "load module",
			prepare: func(f *testutil.FakeMachine) { f.Loaded.Remove("nvidia") },
			apply:   func(ctx context.Context, a *Actions) nvidia.RemediationOutcome { return a.LoadModule(ctx) },
		},
		{
			name:    "unload module",
			prepare: func(f *testutil.FakeMachine) { f.Loaded.Add("nouveau") },
			apply: func(ctx context.Context, a *Actions) nvidia.RemediationOutcome {
				return a.UnloadModule(ctx, "nouveau")
			},
		},
		{
			name:  "blacklist competing driver",
			apply: func(ctx context.Context, a *Actions) nvidia.RemediationOutcome { return a.BlacklistCompetingDriver(ctx) },
		},
		{
			name:    "install headers",
			prepare: func(f *testutil.FakeMachine) { f.Headers[f.Kernel] = false },
			apply: func(ctx context.Context, a *Actions) nvidia.RemediationOutcome {
				return a.InstallHeaders(ctx, "6.8.0-45-generic")
			},
		},
		{
			name:    "install driver package",
			prepare: func(f *testutil.FakeMachine) { delete(f.Installed, "nvidia-driver-535") },
			apply:   func(ctx context.Context, a *Actions) nvidia.RemediationOutcome { return a.InstallDriverPackage(ctx) },
		},
		{
			name:    "rebuild boot image",
			prepare: func(f *testutil.FakeMachine) { delete(f.BootImages, f.Kernel) },
			apply: func(ctx context.Context, a *Actions) nvidia.RemediationOutcome {
				return a.RebuildBootImage(ctx, "6.8.0-45-generic")
			},
		},
		{
			name: "restart service",
			apply: func(ctx context.Context, a *Actions) nvidia.RemediationOutcome {
				return a.RestartService(ctx, "gdm3")
			},
		},
		{
			name:  "refresh module dependencies",
			apply: func(ctx context.Context, a *Actions) nvidia.RemediationOutcome { return a.RefreshModuleDependencies(ctx) },
		},
		{
			name:    "reload module set",
			prepare: func(f *testutil.FakeMachine) { f.Loaded = f.Loaded.Without("nvidia_uvm", "nvidia_drm") },
			apply:   func(ctx context.Context, a *Actions) nvidia.RemediationOutcome { return a.ReloadModuleSet(ctx) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testutil.NewHealthyMachine()
			if tt.prepare != nil {
				tt.prepare(f)
			}
			a := New(f.Machine(), settings())
			ctx := context.Background()

			first := tt.apply(ctx, a)
			require.True(t, first.Applied, first.Error)
			once := f.Snapshot()

			second := tt.apply(ctx, a)
			assert.True(t, second.Applied, second.Error)
			assert.Equal(t, once, f.Snapshot())
		})
	}
}

func TestFailedActionIsRecordedNotFatal(t *testing.T) {
	f := testutil.NewHealthyMachine()
	f.FailRebuild = errors.New("update-initramfs: exit status 1")
	a := New(f.Machine(), settings())

	o := a.RebuildBootImage(context.Background(), "6.8.0-45-generic")

	assert.False(t, o.Applied)
	assert.Equal(t, nvidia.ActionRebuildBootImage, o.Action)
	assert.Contains(t, o.Error, "exit status 1")
}

func TestUnloadAbsentModuleSucceeds(t *testing.T) {
	f := testutil.NewHealthyMachine()
	a := New(f.Machine(), settings())

	o := a.UnloadModule(context.Background(), "nouveau")

	assert.True(t, o.Applied)
	assert.Zero(t, f.CallCount("unload nouveau"))
}

func TestReloadModuleSetCollectsEveryFailure(t *testing.T) {
	f := testutil.NewHealthyMachine()
	f.Loaded = f.Loaded.Without("nvidia_uvm", "nvidia_drm")
	f.FailLoad["nvidia_uvm"] = errors.New("uvm: Unknown symbol")
	f.FailLoad["nvidia_drm"] = errors.New("drm: Invalid argument")
	a := New(f.Machine(), settings())

	o := a.ReloadModuleSet(context.Background())

	assert.False(t, o.Applied)
	assert.Contains(t, o.Error, "Unknown symbol")
	assert.Contains(t, o.Error, "Invalid argument")
	assert.Equal(t, 1, f.CallCount("load nvidia_modeset"))
}

func TestBlacklistRewritesDirective(t *testing.T) {
	f := testutil.NewHealthyMachine()
	f.Blacklist = "blacklist nouveau\nblacklist nouveau\n"
	a := New(f.Machine(), settings())

	o := a.BlacklistCompetingDriver(context.Background())

	assert.True(t, o.Applied)
	assert.Equal(t, "blacklist nouveau\noptions nouveau modeset=0\n", f.Blacklist)
}
