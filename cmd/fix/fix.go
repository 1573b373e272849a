// cmd/fix/fix.go

package fix

import (
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nv_cli"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nv_io"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/engine"
	"github.com/spf13/cobra"
)

// FixCmd runs every check, repairs what it can and verifies the result.
var FixCmd = &cobra.Command{
	Use:     "fix",
	Aliases: []string{"repair"},
	Short:   "Repair the NVIDIA driver stack and verify it",
	Long: `Runs every check in order and applies the matching fix straight after
each failing check:
- load the nvidia kernel module
- blacklist nouveau, rebuild the boot image and restart the display manager
- install missing kernel headers and the driver package
- rebuild the boot image when it lacks the nvidia module

nvidia-smi then verifies the result. When it still fails, nvdoctor reloads
the module set, refreshes module dependencies and tries once more.
Every fix is safe to repeat.

Exit status is 0 when the host ends healthy or repaired, 1 when problems
remain, 4 when there is nothing to repair (no GPU or no nvidia-smi) and
130 when interrupted.

EXAMPLES:
  # Repair with defaults
  sudo nvdoctor fix

  # Always run the bundled pass and wait longer for the display manager
  sudo nvdoctor fix --bundled-pass always --settle 15s`,
	Args: cobra.NoArgs,
	RunE: nv_cli.Wrap(func(rc *nv_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		return engine.RunLocal(rc.Ctx, nvidia.ModeFix, engine.FlagOptions(cmd.Flags(), cmd.OutOrStdout()))
	}),
}
