package tools

// ApprovalMode is the execution policy's stance toward write tools (spec
// §4.9 step 3).
type ApprovalMode string

const (
	ApprovalSafer      ApprovalMode = "safer"
	ApprovalBalanced    ApprovalMode = "balanced" // default
	ApprovalAutonomous ApprovalMode = "autonomous"
)

// Policy is the Execution Policy surface (spec §6 `aigent configuration`):
// denylist/allowlist gates plus the approval-mode decision.
type Policy struct {
	ApprovalMode         ApprovalMode
	ToolDenylist         map[string]bool
	ToolAllowlist        map[string]bool // empty means "no allowlist restriction"
	ApprovalExemptTools  map[string]bool

	SandboxEnabled  bool
	GitAutoCommit   bool
	MaxFileBytes    int64
	ShellTimeout    int64 // seconds; 0 means use the Executor default
}

// Gate applies step 2 of the pipeline: denylist then allowlist.
func (p Policy) Gate(name string) error {
	if p.ToolDenylist[name] {
		return ErrToolDenied
	}
	if len(p.ToolAllowlist) > 0 && !p.ToolAllowlist[name] {
		return ErrToolNotAllowed
	}
	return nil
}

// RequiresApproval applies step 3: the approval-mode × read-only-class
// decision, with the exempt list bypassing the prompt regardless.
func (p Policy) RequiresApproval(name string) bool {
	if p.ApprovalExemptTools[name] {
		return false
	}
	switch p.ApprovalMode {
	case ApprovalSafer:
		return true
	case ApprovalAutonomous:
		return false
	default: // Balanced
		return !ReadOnlyTools[name]
	}
}

// DefaultPolicy matches spec §4.9's documented default: Balanced mode, no
// denylist/allowlist, sandbox on, no auto-commit.
func DefaultPolicy() Policy {
	return Policy{
		ApprovalMode:    ApprovalBalanced,
		ToolDenylist:    map[string]bool{},
		ToolAllowlist:   map[string]bool{},
		ApprovalExemptTools: map[string]bool{},
		SandboxEnabled:  true,
		MaxFileBytes:    10 << 20, // 10 MiB
	}
}
