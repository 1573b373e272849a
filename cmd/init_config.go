// cmd/init_config.go

package cmd

import (
	"fmt"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nv_cli"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nv_io"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/config"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/shared"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// InitConfigCmd writes the default configuration file.
var InitConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write the default configuration file",
	Long: `Writes the built-in defaults as YAML so they can be edited.

EXAMPLES:
  sudo nvdoctor init-config
  nvdoctor init-config --path ~/.config/nvdoctor/config.yaml --force`,
	Args: cobra.NoArgs,
	RunE: nv_cli.Wrap(runInitConfig),
}

func init() {
	InitConfigCmd.Flags().String("path", shared.NvConfigFile, "Where to write the config")
	InitConfigCmd.Flags().Bool("force", false, "Overwrite an existing file")
}

func runInitConfig(rc *nv_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")
	force, _ := cmd.Flags().GetBool("force")

	if err := config.WriteDefault(path, force); err != nil {
		return err
	}
	rc.Log.Info("Default config written", zap.String("path", path))
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
