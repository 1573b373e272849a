/* cmd/root.go */

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/cmd/diagnose"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/cmd/fix"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/interaction"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nv_cli"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nv_err"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nv_io"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/engine"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/telemetry"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var helpLogged bool // global guard to log help only once

// menu entries for the interactive mode, in display order
var menu = []string{
	"Diagnose (read-only)",
	"Fix detected problems",
	"Help",
	"Quit",
}

const (
	menuDiagnose = iota
	menuFix
	menuHelp
	menuQuit
)

// RootCmd is the base command for nvdoctor.
var RootCmd = &cobra.Command{
	Use:   "nvdoctor",
	Short: "Diagnose and repair NVIDIA GPU driver problems",
	Long: `nvdoctor checks the NVIDIA driver stack on this host in a fixed order
(hardware, nvidia-smi, kernel module, nouveau, Secure Boot, kernel headers,
driver package, boot image) and can repair what it finds.

Run without arguments on a terminal for an interactive menu.

EXAMPLES:
  # Inspect without changing anything
  nvdoctor diagnose

  # Repair and verify
  sudo nvdoctor fix

  # Machine-readable report
  nvdoctor diagnose --json`,
	Version:       shared.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          nv_cli.Wrap(runInteractive),
}

// HelpCmd wraps help so that it can be invoked like a normal command.
var HelpCmd = &cobra.Command{
	Use:   "help [command]",
	Short: "Help about any command",
	Long:  "Displays help for nvdoctor or a specific subcommand.",
	RunE: nv_cli.Wrap(func(rc *nv_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return RootCmd.Help()
		}
		c, _, err := RootCmd.Find(args)
		if err != nil || c == nil {
			return nv_err.NewValidationError(
				fmt.Sprintf("command not found: %s", strings.Join(args, " ")),
				"Run nvdoctor help to list commands")
		}
		return c.Help()
	}),
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default /etc/nvdoctor/config.yaml)")
	flags.Bool("json", false, "Print the report as JSON")
	flags.Duration("settle", 5*time.Second, "Wait after restarting the display service")
	flags.String("bundled-pass", "on-failure", "When to run the bundled remediation pass: on-failure or always")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
}

func runInteractive(rc *nv_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	if !interaction.IsInteractive() {
		rc.Log.Debug("No subcommand and no terminal, showing help")
		return cmd.Help()
	}

	choice, err := selectAction(rc.Ctx, os.Stdin, os.Stdout)
	if rc.Ctx.Err() != nil {
		return nv_err.NewUserCancelledError("menu")
	}
	if cerr.Is(err, interaction.ErrNoChoice) {
		return nv_err.NewExpectedError(err)
	}
	if err != nil {
		return err
	}

	opts := engine.FlagOptions(cmd.Flags(), cmd.OutOrStdout())
	switch choice {
	case menuDiagnose:
		return engine.RunLocal(rc.Ctx, nvidia.ModeDiagnose, opts)
	case menuFix:
		return engine.RunLocal(rc.Ctx, nvidia.ModeFix, opts)
	case menuHelp:
		return cmd.Help()
	default:
		rc.Log.Info("User quit from menu")
		return nil
	}
}

// selectAction shows the menu and, for a fix, asks for confirmation first.
// Declining the fix is the same as quitting.
func selectAction(ctx context.Context, in io.Reader, out io.Writer) (int, error) {
	reader := bufio.NewReader(in)
	choice, err := interaction.PromptSelect(ctx, reader, out, "What would you like to do?", menu)
	if err != nil {
		return menuQuit, err
	}
	if choice == menuFix && !interaction.PromptYesNo(ctx, reader, out, "Apply fixes to this host?", false) {
		return menuQuit, nil
	}
	return choice, nil
}

// RegisterCommands adds all subcommands to the root command.
func RegisterCommands() {
	RootCmd.SetHelpCommand(HelpCmd)

	log := logger.GetLogger()
	defaultHelp := RootCmd.HelpFunc()
	RootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if !helpLogged && log != nil {
			log.Debug("Help triggered", zap.String("command", cmd.Name()))
			helpLogged = true
		}
		defaultHelp(cmd, args)
	})

	for _, subCmd := range []*cobra.Command{
		diagnose.DiagnoseCmd,
		fix.FixCmd,
		InitConfigCmd,
	} {
		RootCmd.AddCommand(subCmd)
	}
}

// Execute initializes and runs the root command, then exits with the code
// that matches the error category.
func Execute() {
	RegisterCommands()

	signals := nv_cli.NewSignalHandler(context.Background())
	err := RootCmd.ExecuteContext(signals.Context())
	signals.Stop()

	if err != nil && !cerr.Is(err, engine.ErrRunOutcome) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := telemetry.Shutdown(shutdownCtx); serr != nil {
		logger.L().Warn("Failed to flush telemetry", zap.Error(serr))
	}
	if serr := logger.Sync(); serr != nil && !strings.Contains(serr.Error(), "invalid argument") {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to flush logs: %v\n", serr)
	}

	os.Exit(nv_err.GetExitCode(err))
}
