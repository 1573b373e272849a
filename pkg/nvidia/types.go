// pkg/nvidia/types.go
// Core types for the GPU driver diagnostic engine

package nvidia

import "time"

// Verdict is the health classification of a single check.
type Verdict string

const (
	VerdictOK       Verdict = "OK"
	VerdictWarning  Verdict = "WARNING"
	VerdictFailure  Verdict = "FAILURE"
	VerdictConflict Verdict = "CONFLICT"
)

// CheckID names a check in the fixed pipeline order.
type CheckID string

const (
	CheckHardware            CheckID = "hardware"
	CheckCapabilityInterface CheckID = "capability-interface"
	CheckModuleLoaded        CheckID = "module-loaded"
	CheckCompetingDriver     CheckID = "competing-driver"
	CheckSecureBoot          CheckID = "secure-boot"
	CheckKernelHeaders       CheckID = "kernel-headers"
	CheckDriverPackage       CheckID = "driver-package"
	CheckBootImage           CheckID = "boot-image"
)

// CheckOrder is the order the pipeline runs checks in.
var CheckOrder = []CheckID{
	CheckHardware,
	CheckCapabilityInterface,
	CheckModuleLoaded,
	CheckCompetingDriver,
	CheckSecureBoot,
	CheckKernelHeaders,
	CheckDriverPackage,
	CheckBootImage,
}

// Title is the operator-facing label of a check.
func (c CheckID) Title() string {
	switch c {
	case CheckHardware:
		return "NVIDIA hardware"
	case CheckCapabilityInterface:
		return "nvidia-smi available"
	case CheckModuleLoaded:
		return "Kernel module loaded"
	case CheckCompetingDriver:
		return "Competing driver"
	case CheckSecureBoot:
		return "Secure Boot"
	case CheckKernelHeaders:
		return "Kernel headers"
	case CheckDriverPackage:
		return "Driver package"
	case CheckBootImage:
		return "Boot image"
	default:
		return string(c)
	}
}

// CheckResult is the immutable verdict of one check in one run.
type CheckResult struct {
	ID         CheckID `json:"id"`
	Verdict    Verdict `json:"verdict"`
	Detail     string  `json:"detail"`
	Remediable bool    `json:"remediable"`
}

// OK reports whether the check passed.
func (r CheckResult) OK() bool {
	return r.Verdict == VerdictOK
}

// ActionID names a remediation action.
type ActionID string

const (
	ActionLoadModule         ActionID = "load-module"
	ActionUnloadModule       ActionID = "unload-module"
	ActionBlacklistCompeting ActionID = "blacklist-competing-driver"
	ActionInstallHeaders     ActionID = "install-kernel-headers"
	ActionInstallDriver      ActionID = "install-driver-package"
	ActionRebuildBootImage   ActionID = "rebuild-boot-image"
	ActionRestartService     ActionID = "restart-service"
	ActionRefreshModuleDeps  ActionID = "refresh-module-dependencies"
	ActionReloadModuleSet    ActionID = "reload-module-set"
)

// RemediationOutcome is the result of applying one action.
type RemediationOutcome struct {
	Action  ActionID `json:"action"`
	Target  string   `json:"target,omitempty"`
	Applied bool     `json:"applied"`
	Error   string   `json:"error,omitempty"`
}

// VerificationResult is the result of a capability test run.
type VerificationResult struct {
	Passed  bool   `json:"passed"`
	Output  string `json:"output"`
	Skipped bool   `json:"skipped,omitempty"`
}

// ConflictBranch records what the two-phase competing-driver path did.
type ConflictBranch struct {
	Driver   string              `json:"driver"`
	Phase1   bool                `json:"phase1_blacklisted"`
	Phase2   bool                `json:"phase2_ran"`
	Service  string              `json:"service,omitempty"`
	Settle   time.Duration       `json:"settle_ns,omitempty"`
	Nested   *VerificationResult `json:"nested_verification,omitempty"`
	Resolved bool                `json:"resolved"`
}

// Mode selects what a run is allowed to do.
type Mode string

const (
	ModeDiagnose Mode = "diagnose"
	ModeFix      Mode = "fix"
)
