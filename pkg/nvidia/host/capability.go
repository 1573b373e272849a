// pkg/nvidia/host/capability.go

package host

import (
	"context"
	"os/exec"
	"time"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/execute"
)

// SMI runs the driver's capability command, nvidia-smi by default.
type SMI struct {
	Command string
	Args    []string
	Timeout time.Duration
	Exec    Runner

	lookPath func(string) (string, error)
}

// NewSMI returns an SMI for command.
func NewSMI(command string, run Runner) *SMI {
	return &SMI{Command: command, Exec: run}
}

func (s *SMI) command() string {
	if s.Command == "" {
		return "nvidia-smi"
	}
	return s.Command
}

// LookPath resolves the command on PATH.
func (s *SMI) LookPath() (string, error) {
	look := s.lookPath
	if look == nil {
		look = exec.LookPath
	}
	return look(s.command())
}

// Run executes the command and returns its combined output. The output is
// returned even when the command fails.
func (s *SMI) Run(ctx context.Context) (string, error) {
	timeout := s.Timeout
	if timeout == 0 {
		timeout = time.Minute
	}
	return runnerOrDefault(s.Exec)(ctx, execute.Options{
		Command: s.command(),
		Args:    s.Args,
		Capture: true,
		Timeout: timeout,
	})
}
