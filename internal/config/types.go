package config

import (
	"github.com/aigent/aigent/internal/llm"
	"github.com/aigent/aigent/internal/memory"
	"github.com/aigent/aigent/internal/scheduler"
	"github.com/aigent/aigent/internal/storage"
	"github.com/aigent/aigent/internal/tools"
)

// Config is Aigent's full configuration surface (SPEC_FULL AMBIENT STACK),
// assembled by Load from environment variables and .env, then overlaid by
// RuntimeConfig for the values `aigent configuration`/`ReloadConfig` may
// change without a restart.
type Config struct {
	DataRoot   string
	Timezone   string
	SocketPath string

	LLM LLMConfig

	Execution   tools.Policy
	Scheduler   scheduler.Config
	Memory      MemoryConfig
	Extensions  ExtensionsConfig
	Telegram    TelegramConfig
	WebSearch   WebSearchConfig
	Storage     StorageConfig
	InstallDir  string
}

// LLMConfig names the two concrete providers spec §4.13 requires: a
// local-first one and a cloud one. The `/fallback` directive in a turn
// forces Cloud for that single turn.
type LLMConfig struct {
	Local llm.Config
	Cloud llm.Config
}

// MemoryConfig carries the knobs memory.ManagerConfig needs that aren't
// derivable from DataRoot alone.
type MemoryConfig struct {
	VaultPath          string
	KVTierLimit        int
	IndexCapacity      int
	MaxBeliefsInPrompt int
	Passive            memory.PassiveSleepConfig
	MultiAgent         memory.MultiAgentSleepConfig
}

// ExtensionsConfig locates the WASM guest tool directory C9 discovers at
// startup (spec §4.9 guest protocol).
type ExtensionsConfig struct {
	Dir string
}

// TelegramConfig is read-only core state: spec §6 names `TELEGRAM_BOT_TOKEN`
// as an env var the core consumes only to decide whether `ReloadConfig`
// should signal a bot-task restart — the core never speaks the bot protocol
// itself (see DESIGN.md for the dropped bot-SDK dependencies).
type TelegramConfig struct {
	Token   string
	Enabled bool
}

// WebSearchConfig selects Brave vs. DuckDuckGo for the web_search tool
// (spec §8: "web_search without a Brave key succeeds via DuckDuckGo; with a
// key takes the Brave path").
type WebSearchConfig struct {
	BraveAPIKey   string
	UserAgent     string
	Timeout       int // seconds
}

// StorageConfig backs the optional `memory export-vault --remote` target.
type StorageConfig struct {
	Enabled bool
	storage.Config
}
