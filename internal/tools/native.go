package tools

import (
	"time"

	"github.com/aigent/aigent/internal/cron"
)

// NativeConfig gathers what the baseline tool set needs from the daemon.
type NativeConfig struct {
	WorkspaceRoot string
	MaxFileBytes  int64
	SandboxEnabled bool
	ShellTimeout  time.Duration
	UserAgent     string
	BraveAPIKey   string
	SearchTimeout time.Duration
	Reminders     *cron.Store
}

// RegisterNativeTools wires the full baseline set named in spec §4.9:
// read_file, write_file, run_shell, calendar_add_event, web_search,
// draft_email, remind_me, git_rollback. Each call is a no-op for any name a
// WASM guest already claimed, by construction of RegisterNative.
func RegisterNativeTools(r *Registry, cfg NativeConfig) {
	registerFSTools(r, cfg.WorkspaceRoot, cfg.MaxFileBytes)
	registerShellTool(r, cfg.WorkspaceRoot, cfg.SandboxEnabled, cfg.ShellTimeout)
	registerWebSearchTool(r, cfg.UserAgent, cfg.BraveAPIKey, cfg.SearchTimeout)
	registerDraftEmailTool(r, cfg.WorkspaceRoot)
	registerGitRollbackTool(r, cfg.WorkspaceRoot)
	if cfg.Reminders != nil {
		registerCalendarTools(r, cfg.Reminders)
	}
}
