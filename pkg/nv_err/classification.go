// pkg/nv_err/classification.go
//
// Error classification with exit codes and operator remediation steps.

package nv_err

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies errors for appropriate handling
type ErrorCategory int

const (
	// CategorySystem - OS/driver state issues (exit 1)
	CategorySystem ErrorCategory = iota
	// CategoryValidation - Input or config validation failures (exit 2)
	CategoryValidation
	// CategoryUser - User cancelled/interrupted (exit 130)
	CategoryUser
	// CategoryInternal - Bugs in nvdoctor itself (exit 3)
	CategoryInternal
	// CategoryDependency - Missing tools (exit 1)
	CategoryDependency
	// CategoryPermission - Permission denied (exit 1)
	CategoryPermission
	// CategoryPrecondition - Nothing can be diagnosed on this host (exit 4)
	CategoryPrecondition
)

// ClassifiedError wraps an error with category and remediation info
type ClassifiedError struct {
	Category    ErrorCategory
	Message     string
	Cause       error
	Remediation []string
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	var sb strings.Builder

	sb.WriteString(e.Message)

	if e.Cause != nil && e.Cause.Error() != e.Message {
		sb.WriteString(fmt.Sprintf("\n\nCause: %v", e.Cause))
	}

	if len(e.Remediation) > 0 {
		sb.WriteString("\n\nHow to fix:")
		for i, step := range e.Remediation {
			sb.WriteString(fmt.Sprintf("\n  %d. %s", i+1, step))
		}
	}

	return sb.String()
}

// Unwrap returns the underlying error
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error category
func (e *ClassifiedError) ExitCode() int {
	switch e.Category {
	case CategoryUser:
		return 130 // Standard for SIGINT (Ctrl-C)
	case CategoryValidation:
		return 2
	case CategoryInternal:
		return 3
	case CategoryPrecondition:
		return 4
	default:
		return 1
	}
}

// GetExitCode extracts exit code from any error
// Returns 0 for nil, appropriate code for classified errors, 1 for others
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.ExitCode()
	}

	if errors.Is(err, ErrInterrupted) {
		return 130
	}

	if IsExpectedUserError(err) {
		return 0
	}

	return 1
}

// NewValidationError creates an error for input validation failures
func NewValidationError(message string, remediation ...string) error {
	return &ClassifiedError{
		Category:    CategoryValidation,
		Message:     message,
		Remediation: remediation,
	}
}

// NewDependencyError creates an error for missing dependencies
func NewDependencyError(dependency, operation string, remediation ...string) error {
	return &ClassifiedError{
		Category: CategoryDependency,
		Message: fmt.Sprintf("%s is required for %s but not found",
			dependency, operation),
		Remediation: remediation,
	}
}

// NewSystemError creates an error for host state that remained broken
func NewSystemError(message string, cause error, remediation ...string) error {
	return &ClassifiedError{
		Category:    CategorySystem,
		Message:     message,
		Cause:       cause,
		Remediation: remediation,
	}
}

// NewPreconditionError creates an error for hosts where diagnosis cannot continue
func NewPreconditionError(message string, remediation ...string) error {
	return &ClassifiedError{
		Category:    CategoryPrecondition,
		Message:     message,
		Remediation: remediation,
	}
}

// NewPermissionError creates an error for permission issues
func NewPermissionError(resource, operation string, remediation ...string) error {
	return &ClassifiedError{
		Category: CategoryPermission,
		Message: fmt.Sprintf("Permission denied: cannot %s %s",
			operation, resource),
		Remediation: remediation,
	}
}

// NewUserCancelledError creates an error for user-initiated cancellation
func NewUserCancelledError(operation string) error {
	return &ClassifiedError{
		Category:    CategoryUser,
		Message:     fmt.Sprintf("Operation cancelled by user: %s", operation),
		Cause:       ErrInterrupted,
		Remediation: []string{"Run the command again to retry; applied fixes are safe to keep"},
	}
}

// NewInternalError creates an error for nvdoctor bugs
func NewInternalError(message string, cause error) error {
	return &ClassifiedError{
		Category: CategoryInternal,
		Message:  message,
		Cause:    cause,
		Remediation: []string{
			"This is likely a bug in nvdoctor",
			"Include this error message and the log file when reporting it",
		},
	}
}

// ClassifyError attempts to classify an existing error
func ClassifyError(err error, context string) error {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return err
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "permission denied"),
		strings.Contains(errStr, "operation not permitted"):
		return NewPermissionError(context, "modify", "Re-run with sudo")

	case strings.Contains(errStr, "executable file not found"),
		strings.Contains(errStr, "command not found"):
		return NewDependencyError(
			extractCommand(errStr),
			context,
			"Install the required tool",
			"Check that it's in your PATH",
		)

	default:
		return NewSystemError(fmt.Sprintf("%s failed", context), err)
	}
}

// extractCommand pulls the command name out of `exec: "modprobe": executable file not found`.
func extractCommand(errMsg string) string {
	if strings.Contains(errMsg, "exec:") {
		parts := strings.Split(errMsg, "\"")
		if len(parts) >= 2 {
			return parts[1]
		}
	}
	return "command"
}
