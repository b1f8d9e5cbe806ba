package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aigent/aigent/internal/tools"
)

// RuntimeConfig holds the subset of Config the `aigent configuration`
// wizard and `ReloadConfig` may change without touching .env or a restart
// (SPEC_FULL AMBIENT STACK), adapted from the teacher's RuntimeConfig:
// same JSON-file-backed overlay with an allow-listed key set, generalized
// from model/provider selection to Aigent's execution-policy surface.
type RuntimeConfig struct {
	mu   sync.RWMutex
	path string
	data RuntimeData
}

// RuntimeData is the serializable overlay. Only non-secret, non-default
// fields are ever written.
type RuntimeData struct {
	ApprovalMode             string `json:"approval_mode,omitempty"`
	SandboxEnabled           *bool  `json:"sandbox_enabled,omitempty"`
	GitAutoCommit            *bool  `json:"git_auto_commit,omitempty"`
	ProactiveIntervalMinutes *int   `json:"proactive_interval_minutes,omitempty"`
	LocalModel               string `json:"local_model,omitempty"`
	CloudModel               string `json:"cloud_model,omitempty"`
	OllamaBaseURL            string `json:"ollama_base_url,omitempty"`
}

// AllowedKeys documents which keys Set accepts, for the wizard to render.
var AllowedKeys = map[string]string{
	"approval_mode":              "Tool approval mode (safer, balanced, autonomous)",
	"sandbox_enabled":             "Sandbox run_shell calls (true/false)",
	"git_auto_commit":             "Auto-commit workspace changes after write tools (true/false)",
	"proactive_interval_minutes":  "Minutes between proactive-task firings (0 disables)",
	"local_model":                 "Local (Ollama) model name",
	"cloud_model":                 "Cloud (Claude) model name",
	"ollama_base_url":             "Ollama server URL",
}

// NewRuntimeConfig loads the overlay file under dataRoot if present.
func NewRuntimeConfig(dataRoot string) (*RuntimeConfig, error) {
	rc := &RuntimeConfig{path: filepath.Join(dataRoot, "runtime_config.json")}
	if data, err := os.ReadFile(rc.path); err == nil {
		if err := json.Unmarshal(data, &rc.data); err != nil {
			return nil, fmt.Errorf("parse runtime config: %w", err)
		}
	}
	rc.validateAndFix()
	return rc, nil
}

// validateAndFix drops an approval mode that is no longer one of the three
// recognized values, self-healing a hand-edited or stale overlay file.
func (rc *RuntimeConfig) validateAndFix() {
	switch tools.ApprovalMode(rc.data.ApprovalMode) {
	case "", tools.ApprovalSafer, tools.ApprovalBalanced, tools.ApprovalAutonomous:
		return
	}
	rc.data.ApprovalMode = ""
	rc.save()
}

// Apply overlays the stored values onto cfg, mutating it in place. Called
// after Load() in cmd/aigent and again on ReloadConfig.
func (rc *RuntimeConfig) Apply(cfg *Config) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	if rc.data.ApprovalMode != "" {
		cfg.Execution.ApprovalMode = tools.ApprovalMode(rc.data.ApprovalMode)
	}
	if rc.data.SandboxEnabled != nil {
		cfg.Execution.SandboxEnabled = *rc.data.SandboxEnabled
	}
	if rc.data.GitAutoCommit != nil {
		cfg.Execution.GitAutoCommit = *rc.data.GitAutoCommit
	}
	if rc.data.ProactiveIntervalMinutes != nil {
		cfg.Scheduler.ProactiveIntervalMinutes = *rc.data.ProactiveIntervalMinutes
	}
	if rc.data.LocalModel != "" {
		cfg.LLM.Local.Model = rc.data.LocalModel
	}
	if rc.data.CloudModel != "" {
		cfg.LLM.Cloud.Model = rc.data.CloudModel
	}
	if rc.data.OllamaBaseURL != "" {
		cfg.LLM.Local.BaseURL = rc.data.OllamaBaseURL
	}
}

// Set updates one overlay value by its wizard-facing key name.
func (rc *RuntimeConfig) Set(key, value string) error {
	if _, ok := AllowedKeys[key]; !ok {
		return fmt.Errorf("key %q is not allowed for runtime config", key)
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	switch key {
	case "approval_mode":
		rc.data.ApprovalMode = value
	case "sandbox_enabled":
		b := value == "true"
		rc.data.SandboxEnabled = &b
	case "git_auto_commit":
		b := value == "true"
		rc.data.GitAutoCommit = &b
	case "proactive_interval_minutes":
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
			return fmt.Errorf("invalid integer %q: %w", value, err)
		}
		rc.data.ProactiveIntervalMinutes = &n
	case "local_model":
		rc.data.LocalModel = value
	case "cloud_model":
		rc.data.CloudModel = value
	case "ollama_base_url":
		rc.data.OllamaBaseURL = value
	}
	return rc.save()
}

// All returns the current overlay as a flat map for the wizard to render.
func (rc *RuntimeConfig) All() map[string]string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	out := map[string]string{}
	if rc.data.ApprovalMode != "" {
		out["approval_mode"] = rc.data.ApprovalMode
	}
	if rc.data.SandboxEnabled != nil {
		out["sandbox_enabled"] = fmt.Sprintf("%v", *rc.data.SandboxEnabled)
	}
	if rc.data.GitAutoCommit != nil {
		out["git_auto_commit"] = fmt.Sprintf("%v", *rc.data.GitAutoCommit)
	}
	if rc.data.ProactiveIntervalMinutes != nil {
		out["proactive_interval_minutes"] = fmt.Sprintf("%d", *rc.data.ProactiveIntervalMinutes)
	}
	if rc.data.LocalModel != "" {
		out["local_model"] = rc.data.LocalModel
	}
	if rc.data.CloudModel != "" {
		out["cloud_model"] = rc.data.CloudModel
	}
	if rc.data.OllamaBaseURL != "" {
		out["ollama_base_url"] = rc.data.OllamaBaseURL
	}
	return out
}

func (rc *RuntimeConfig) save() error {
	data, err := json.MarshalIndent(rc.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(rc.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(rc.path, data, 0o644)
}
