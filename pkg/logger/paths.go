/* pkg/logger/paths.go */

package logger

import (
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/xdg"
)

// PlatformLogPaths returns candidate log paths in order of priority.
func PlatformLogPaths() []string {
	return []string{
		shared.NvLogs, // writable when run via sudo
		xdg.XDGStatePath(shared.NvID, "nvdoctor.log"),
		shared.NvLogsPWD,
		"/tmp/nvdoctor/nvdoctor.log",
	}
}
