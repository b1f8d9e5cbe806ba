package config

import (
	"testing"

	"github.com/aigent/aigent/internal/tools"
)

func clearAigentEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"AIGENT_DATA_ROOT", "TZ", "AIGENT_SOCKET_PATH", "AIGENT_EXTENSIONS_DIR",
		"OLLAMA_BASE_URL", "AIGENT_LOCAL_MODEL", "OPENROUTER_API_KEY", "AIGENT_CLOUD_MODEL",
		"AIGENT_APPROVAL_MODE", "AIGENT_TOOL_DENYLIST", "AIGENT_TOOL_ALLOWLIST",
		"AIGENT_APPROVAL_EXEMPT_TOOLS", "AIGENT_SANDBOX_ENABLED", "AIGENT_GIT_AUTO_COMMIT",
		"AIGENT_MAX_FILE_BYTES", "AIGENT_SHELL_TIMEOUT_SECONDS", "AIGENT_QUIET_WINDOW_START_HOUR",
		"AIGENT_QUIET_WINDOW_END_HOUR", "AIGENT_PROACTIVE_INTERVAL_MINUTES", "TELEGRAM_BOT_TOKEN",
		"BRAVE_API_KEY", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearAigentEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SocketPath != "/tmp/aigent.sock" {
		t.Errorf("unexpected socket path: %s", cfg.SocketPath)
	}
	if cfg.Execution.ApprovalMode != tools.ApprovalBalanced {
		t.Errorf("expected default Balanced approval mode, got %s", cfg.Execution.ApprovalMode)
	}
	if !cfg.Execution.SandboxEnabled {
		t.Error("expected sandbox enabled by default")
	}
	if cfg.Memory.MaxBeliefsInPrompt != 5 {
		t.Errorf("expected default max_beliefs_in_prompt of 5, got %d", cfg.Memory.MaxBeliefsInPrompt)
	}
	if cfg.Telegram.Enabled {
		t.Error("expected telegram disabled with no token")
	}
	if cfg.Storage.Enabled {
		t.Error("expected storage disabled with no credentials")
	}
}

func TestLoadParsesToolLists(t *testing.T) {
	clearAigentEnv(t)
	t.Setenv("AIGENT_TOOL_DENYLIST", "run_shell, git_rollback")
	t.Setenv("AIGENT_APPROVAL_EXEMPT_TOOLS", "read_file")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Execution.ToolDenylist["run_shell"] || !cfg.Execution.ToolDenylist["git_rollback"] {
		t.Errorf("unexpected denylist: %+v", cfg.Execution.ToolDenylist)
	}
	if !cfg.Execution.ApprovalExemptTools["read_file"] {
		t.Errorf("unexpected exempt list: %+v", cfg.Execution.ApprovalExemptTools)
	}
}

func TestLoadInvalidApprovalModeFallsBackToBalanced(t *testing.T) {
	clearAigentEnv(t)
	t.Setenv("AIGENT_APPROVAL_MODE", "yolo")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Execution.ApprovalMode != tools.ApprovalBalanced {
		t.Errorf("expected fallback to Balanced, got %s", cfg.Execution.ApprovalMode)
	}
}

func TestRuntimeConfigSetAndApply(t *testing.T) {
	root := t.TempDir()
	rc, err := NewRuntimeConfig(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rc.Set("approval_mode", "autonomous"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := rc.Set("proactive_interval_minutes", "30"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := &Config{Execution: tools.DefaultPolicy()}
	rc.Apply(cfg)
	if cfg.Execution.ApprovalMode != tools.ApprovalAutonomous {
		t.Errorf("expected overlay to apply, got %s", cfg.Execution.ApprovalMode)
	}
	if cfg.Scheduler.ProactiveIntervalMinutes != 30 {
		t.Errorf("expected overlay interval 30, got %d", cfg.Scheduler.ProactiveIntervalMinutes)
	}
}

func TestRuntimeConfigRejectsUnknownKey(t *testing.T) {
	rc, err := NewRuntimeConfig(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rc.Set("not_a_real_key", "x"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestRuntimeConfigPersistsAcrossReload(t *testing.T) {
	root := t.TempDir()
	rc, err := NewRuntimeConfig(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rc.Set("cloud_model", "claude-opus-4-5-20251101"); err != nil {
		t.Fatalf("set: %v", err)
	}

	reloaded, err := NewRuntimeConfig(root)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.All()["cloud_model"]; got != "claude-opus-4-5-20251101" {
		t.Errorf("expected persisted overlay to survive reload, got %q", got)
	}
}

func TestRuntimeConfigSelfHealsInvalidApprovalMode(t *testing.T) {
	root := t.TempDir()
	rc, err := NewRuntimeConfig(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rc.data.ApprovalMode = "not-a-real-mode"
	rc.validateAndFix()
	if rc.data.ApprovalMode != "" {
		t.Errorf("expected invalid approval mode to be cleared, got %q", rc.data.ApprovalMode)
	}
}
