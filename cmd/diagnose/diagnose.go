// cmd/diagnose/diagnose.go

package diagnose

import (
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nv_cli"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nv_io"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/engine"
	"github.com/spf13/cobra"
)

// DiagnoseCmd runs every check without changing the host.
var DiagnoseCmd = &cobra.Command{
	Use:     "diagnose",
	Aliases: []string{"check"},
	Short:   "Check the NVIDIA driver stack without changing anything",
	Long: `Runs every check in order and the nvidia-smi verification, then prints
the findings. Nothing on the host is modified, so root is not required,
although some facts (Secure Boot, boot image contents) are only visible
to root.

Exit status is 0 when the host is healthy and 1 when issues were found.
Hosts without an NVIDIA GPU or without nvidia-smi exit 4.

EXAMPLES:
  nvdoctor diagnose
  nvdoctor diagnose --json | jq .checks`,
	Args: cobra.NoArgs,
	RunE: nv_cli.Wrap(func(rc *nv_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		return engine.RunLocal(rc.Ctx, nvidia.ModeDiagnose, engine.FlagOptions(cmd.Flags(), cmd.OutOrStdout()))
	}),
}
