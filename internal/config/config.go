package config

import (
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aigent/aigent/internal/llm"
	"github.com/aigent/aigent/internal/memory"
	"github.com/aigent/aigent/internal/scheduler"
	"github.com/aigent/aigent/internal/storage"
	"github.com/aigent/aigent/internal/tools"
)

// Load reads Config from the environment, the teacher's one-loader-
// function-per-concern shape generalized from bot/budget/coder config to
// Aigent's actual surface (SPEC_FULL AMBIENT STACK). Callers load `.env`
// via godotenv before calling Load, exactly as the teacher's cmd/sheldon
// does.
func Load() (*Config, error) {
	dataRoot := os.Getenv("AIGENT_DATA_ROOT")
	if dataRoot == "" {
		dataRoot = defaultDataRoot()
	}

	timezone := os.Getenv("TZ")
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	socketPath := os.Getenv("AIGENT_SOCKET_PATH")
	if socketPath == "" {
		socketPath = "/tmp/aigent.sock"
	}

	extensionsDir := os.Getenv("AIGENT_EXTENSIONS_DIR")
	if extensionsDir == "" {
		extensionsDir = filepath.Join(dataRoot, "extensions")
	}

	return &Config{
		DataRoot:   dataRoot,
		Timezone:   timezone,
		SocketPath: socketPath,
		LLM:        loadLLMConfig(),
		Execution:  loadExecutionPolicy(),
		Scheduler:  loadSchedulerConfig(loc),
		Memory:     loadMemoryConfig(),
		Extensions: ExtensionsConfig{Dir: extensionsDir},
		Telegram:   loadTelegramConfig(),
		WebSearch:  loadWebSearchConfig(),
		Storage:    loadStorageConfig(),
		InstallDir: os.Getenv("AIGENT_INSTALL_DIR"),
	}, nil
}

func defaultDataRoot() string {
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		return filepath.Join(u.HomeDir, ".aigent")
	}
	return ".aigent"
}

// loadLLMConfig resolves the two concrete providers spec §4.13 names: a
// local-first one (Ollama, via OLLAMA_BASE_URL) and a cloud one (Claude,
// via the OPENROUTER_API_KEY spec §6 names as "cloud provider auth").
func loadLLMConfig() LLMConfig {
	ollamaURL := os.Getenv("OLLAMA_BASE_URL")
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	localModel := os.Getenv("AIGENT_LOCAL_MODEL")
	if localModel == "" {
		localModel = "llama3"
	}

	cloudModel := os.Getenv("AIGENT_CLOUD_MODEL")
	if cloudModel == "" {
		cloudModel = "claude-sonnet-4-20250514"
	}

	return LLMConfig{
		Local: llm.Config{Provider: "ollama", BaseURL: ollamaURL, Model: localModel},
		Cloud: llm.Config{Provider: "claude", APIKey: os.Getenv("OPENROUTER_API_KEY"), Model: cloudModel},
	}
}

// loadExecutionPolicy builds the C9 Execution Policy surface (spec §6
// `aigent configuration`): approval mode, denylist/allowlist, exempt list,
// sandboxing, and auto-commit.
func loadExecutionPolicy() tools.Policy {
	mode := tools.ApprovalMode(strings.ToLower(os.Getenv("AIGENT_APPROVAL_MODE")))
	switch mode {
	case tools.ApprovalSafer, tools.ApprovalBalanced, tools.ApprovalAutonomous:
	default:
		mode = tools.ApprovalBalanced
	}

	maxFileBytes := int64(10 << 20)
	if v, err := strconv.ParseInt(os.Getenv("AIGENT_MAX_FILE_BYTES"), 10, 64); err == nil && v > 0 {
		maxFileBytes = v
	}

	shellTimeout := int64(30)
	if v, err := strconv.ParseInt(os.Getenv("AIGENT_SHELL_TIMEOUT_SECONDS"), 10, 64); err == nil && v > 0 {
		shellTimeout = v
	}

	return tools.Policy{
		ApprovalMode:        mode,
		ToolDenylist:        stringSetFromEnv("AIGENT_TOOL_DENYLIST"),
		ToolAllowlist:       stringSetFromEnv("AIGENT_TOOL_ALLOWLIST"),
		ApprovalExemptTools: stringSetFromEnv("AIGENT_APPROVAL_EXEMPT_TOOLS"),
		SandboxEnabled:      os.Getenv("AIGENT_SANDBOX_ENABLED") != "false",
		GitAutoCommit:       os.Getenv("AIGENT_GIT_AUTO_COMMIT") == "true",
		MaxFileBytes:        maxFileBytes,
		ShellTimeout:        shellTimeout,
	}
}

func stringSetFromEnv(key string) map[string]bool {
	raw := os.Getenv(key)
	if raw == "" {
		return map[string]bool{}
	}
	out := map[string]bool{}
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			out[name] = true
		}
	}
	return out
}

// loadSchedulerConfig builds C8's three-task config (spec §4.8): the
// nightly quiet window, proactive interval/cooldown, and the DND window.
func loadSchedulerConfig(loc *time.Location) scheduler.Config {
	return scheduler.Config{
		Timezone:                 loc,
		QuietWindowStartHour:     envInt("AIGENT_QUIET_WINDOW_START_HOUR", 22),
		QuietWindowEndHour:       envInt("AIGENT_QUIET_WINDOW_END_HOUR", 6),
		NightlyCooldown:          time.Duration(envInt("AIGENT_NIGHTLY_COOLDOWN_HOURS", 22)) * time.Hour,
		ConversationQuiet:        time.Duration(envInt("AIGENT_CONVERSATION_QUIET_MINUTES", 15)) * time.Minute,
		ProactiveIntervalMinutes: envInt("AIGENT_PROACTIVE_INTERVAL_MINUTES", 0),
		ProactiveCooldown:        time.Duration(envInt("AIGENT_PROACTIVE_COOLDOWN_MINUTES", 120)) * time.Minute,
		DNDStartHour:             envInt("AIGENT_DND_START_HOUR", 22),
		DNDEndHour:               envInt("AIGENT_DND_END_HOUR", 8),
	}
}

// loadMemoryConfig builds memory.ManagerConfig's tunables (spec §4.2-4.7,
// §9 open question: max_beliefs_in_prompt defaults to 5).
func loadMemoryConfig() MemoryConfig {
	return MemoryConfig{
		VaultPath:          os.Getenv("AIGENT_VAULT_PATH"),
		KVTierLimit:        envInt("AIGENT_KV_TIER_LIMIT", 20),
		IndexCapacity:      envInt("AIGENT_INDEX_CAPACITY", 5000),
		MaxBeliefsInPrompt: envInt("AIGENT_MAX_BELIEFS_IN_PROMPT", 5),
		Passive: memory.PassiveSleepConfig{
			ForgetEpisodicAfterDays: envInt("AIGENT_FORGET_EPISODIC_AFTER_DAYS", 0),
			ForgetMinConfidence:     envFloat("AIGENT_FORGET_MIN_CONFIDENCE", 0),
		},
		MultiAgent: memory.MultiAgentSleepConfig{
			BatchSize: envInt("AIGENT_MULTIAGENT_BATCH_SIZE", 0),
		},
	}
}

// loadTelegramConfig reads the one bot-related env var the core consumes
// (spec §6); it never drives a bot protocol itself.
func loadTelegramConfig() TelegramConfig {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	return TelegramConfig{Token: token, Enabled: token != ""}
}

func loadWebSearchConfig() WebSearchConfig {
	return WebSearchConfig{
		BraveAPIKey: os.Getenv("BRAVE_API_KEY"),
		UserAgent:   os.Getenv("AIGENT_USER_AGENT"),
		Timeout:     envInt("AIGENT_WEB_SEARCH_TIMEOUT_SECONDS", 10),
	}
}

func loadStorageConfig() StorageConfig {
	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "minio:9000"
	}

	return StorageConfig{
		Enabled: accessKey != "" && secretKey != "",
		Config: storage.Config{
			Endpoint:  endpoint,
			AccessKey: accessKey,
			SecretKey: secretKey,
			UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
			Bucket:    os.Getenv("MINIO_BUCKET"),
		},
	}
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}
