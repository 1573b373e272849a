// pkg/nv_cli/wrap.go

package nv_cli

import (
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nv_err"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nv_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// Wrap ensures panic recovery, telemetry and logging around a command body.
// The command's context (cancelled on SIGINT/SIGTERM) becomes rc.Ctx.
func Wrap(fn func(rc *nv_io.RuntimeContext, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if logger.GetLogger() == nil {
			logger.InitFallback()
		}

		rc := nv_io.NewContext(cmd.Context(), cmd.Name())
		defer rc.End(&err)
		defer rc.HandlePanic(&err)

		nv_io.LogRuntimeExecutionContext(rc)

		err = fn(rc, cmd, args)
		if err != nil && !nv_err.IsExpectedUserError(err) {
			var classified *nv_err.ClassifiedError
			if !cerr.As(err, &classified) {
				err = cerr.WithStack(err)
			}
		}
		return err
	}
}
