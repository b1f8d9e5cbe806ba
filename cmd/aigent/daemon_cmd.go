package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/aigent/aigent/internal/agent"
	"github.com/aigent/aigent/internal/approval"
	"github.com/aigent/aigent/internal/config"
	"github.com/aigent/aigent/internal/cron"
	"github.com/aigent/aigent/internal/daemon"
	"github.com/aigent/aigent/internal/llm"
	"github.com/aigent/aigent/internal/logger"
	"github.com/aigent/aigent/internal/memory"
	"github.com/aigent/aigent/internal/scheduler"
	"github.com/aigent/aigent/internal/session"
	"github.com/aigent/aigent/internal/storage"
	"github.com/aigent/aigent/internal/tools"
)

const defaultContextLimit = 12

func pidFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataRoot, "daemon.pid")
}

// dispatchDaemon handles `aigent daemon {start,stop,restart,status}` (spec
// §6's CLI table) — all of them act on an already-built Config, never the
// foreground process itself.
func dispatchDaemon(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: aigent daemon {start|stop|restart|status}")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	switch args[0] {
	case "start":
		return startDaemonBackground(cfg)
	case "stop":
		return stopDaemonBackground(cfg)
	case "restart":
		if err := stopDaemonBackground(cfg); err != nil {
			logger.Warn("daemon restart: stop failed, starting anyway", "err", err)
		}
		return startDaemonBackground(cfg)
	case "status":
		return printDaemonStatus(cfg)
	default:
		return fmt.Errorf("unknown daemon subcommand %q", args[0])
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	runtimeCfg, err := config.NewRuntimeConfig(cfg.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("load runtime config: %w", err)
	}
	runtimeCfg.Apply(cfg)
	return cfg, nil
}

// runDaemonForeground is `aigent start`: build the full stack and block
// until a signal arrives, then run spec §4.10's graceful shutdown sequence.
func runDaemonForeground() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return serve(cfg)
}

// startDaemonBackground re-execs this same binary with `start` as a
// detached child, writing its PID so `stop`/`status` can find it again —
// the one piece of process management the daemon itself doesn't need when
// run under a supervisor, but spec §6 names as a bare CLI verb.
func startDaemonBackground(cfg *config.Config) error {
	if pid, alive := readAlivePID(cfg); alive {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	self, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(self, "start")
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn daemon: %w", err)
	}

	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(pidFilePath(cfg), []byte(strconv.Itoa(cmd.Process.Pid)), 0o644); err != nil {
		return err
	}
	logger.Info("daemon started", "pid", cmd.Process.Pid, "socket", cfg.SocketPath)
	return nil
}

func stopDaemonBackground(cfg *config.Config) error {
	pid, alive := readAlivePID(cfg)
	if !alive {
		return fmt.Errorf("daemon not running")
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon (pid %d): %w", pid, err)
	}
	_ = os.Remove(pidFilePath(cfg))
	logger.Info("daemon stop signaled", "pid", pid)
	return nil
}

func printDaemonStatus(cfg *config.Config) error {
	pid, alive := readAlivePID(cfg)
	if !alive {
		fmt.Println("daemon: not running")
		return nil
	}
	fmt.Printf("daemon: running (pid %d, socket %s)\n", pid, cfg.SocketPath)
	return nil
}

func readAlivePID(cfg *config.Config) (int, bool) {
	data, err := os.ReadFile(pidFilePath(cfg))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, false
	}
	if err := syscall.Kill(pid, syscall.Signal(0)); err != nil {
		return 0, false
	}
	return pid, true
}

// serve assembles every component the spec names and blocks serving the
// socket until SIGINT/SIGTERM or a Shutdown request over the socket, then
// runs Server.Shutdown's graceful sequence.
func serve(cfg *config.Config) error {
	local, err := llm.New(cfg.LLM.Local)
	if err != nil {
		return fmt.Errorf("create local llm: %w", err)
	}
	cloud, err := llm.New(cfg.LLM.Cloud)
	if err != nil {
		return fmt.Errorf("create cloud llm: %w", err)
	}
	selector := &llm.Selector{Local: local, Cloud: cloud}

	mem, err := memory.OpenMemoryManager(memory.ManagerConfig{
		DataRoot:           cfg.DataRoot,
		VaultPath:          cfg.Memory.VaultPath,
		KVTierLimit:        cfg.Memory.KVTierLimit,
		IndexCapacity:      cfg.Memory.IndexCapacity,
		Passive:            cfg.Memory.Passive,
		MultiAgent:         cfg.Memory.MultiAgent,
		MaxBeliefsInPrompt: cfg.Memory.MaxBeliefsInPrompt,
	})
	if err != nil {
		return fmt.Errorf("open memory manager: %w", err)
	}
	defer mem.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopWatcher, err := mem.StartWatcher(ctx)
	if err != nil {
		logger.Warn("vault watcher failed to start", "err", err)
	} else {
		defer stopWatcher()
	}

	registry := tools.NewRegistry()
	closeGuests, err := tools.DiscoverWASMGuests(ctx, registry, cfg.Extensions.Dir, cfg.DataRoot)
	if err != nil {
		logger.Warn("wasm guest discovery failed", "err", err)
	} else {
		defer closeGuests()
	}

	cronDB, err := sql.Open("sqlite", filepath.Join(cfg.DataRoot, "cron.sqlite"))
	if err != nil {
		return fmt.Errorf("open cron db: %w", err)
	}
	defer cronDB.Close()
	reminders, err := cron.NewStore(cronDB)
	if err != nil {
		return fmt.Errorf("open cron store: %w", err)
	}

	tools.RegisterNativeTools(registry, tools.NativeConfig{
		WorkspaceRoot:  cfg.DataRoot,
		MaxFileBytes:   cfg.Execution.MaxFileBytes,
		SandboxEnabled: cfg.Execution.SandboxEnabled,
		ShellTimeout:   time.Duration(cfg.Execution.ShellTimeout) * time.Second,
		UserAgent:      cfg.WebSearch.UserAgent,
		BraveAPIKey:    cfg.WebSearch.BraveAPIKey,
		SearchTimeout:  time.Duration(cfg.WebSearch.Timeout) * time.Second,
		Reminders:      reminders,
	})

	approvals := approval.NewManager(5 * time.Minute)
	executor := &tools.Executor{
		Registry:      registry,
		Policy:        cfg.Execution,
		Approvals:     approvals,
		Memory:        mem,
		WorkspaceRoot: cfg.DataRoot,
		Timeout:       time.Duration(cfg.Execution.ShellTimeout) * time.Second,
	}

	sessions := session.NewStore(50)
	runtime := agent.New(selector, mem, executor, sessions, defaultContextLimit, time.Duration(cfg.Execution.ShellTimeout)*time.Second)

	var storageClient *storage.Client
	if cfg.Storage.Enabled {
		storageClient, err = storage.NewClient(cfg.Storage.Config)
		if err != nil {
			logger.Warn("storage client unavailable", "err", err)
		} else if err := storageClient.Init(ctx); err != nil {
			logger.Warn("storage bucket init failed", "err", err)
			storageClient = nil
		}
	}

	cell := daemon.NewCell(runtime, mem, executor, nil)
	srv := daemon.New(cfg.SocketPath, cell, nil)
	srv.Storage = storageClient // consumed by `aigent memory export-vault --remote`

	telegramState := cfg.Telegram
	srv.ReloadConfig = func(ctx context.Context) (daemon.ReloadResult, error) {
		_ = godotenv.Overload()
		newCfg, err := loadConfig()
		if err != nil {
			return daemon.ReloadResult{}, err
		}
		changed := newCfg.Telegram != telegramState
		telegramState = newCfg.Telegram
		if changed {
			logger.Info("telegram config changed on reload; no bot task exists in this build to restart", "enabled", newCfg.Telegram.Enabled)
		}
		return daemon.ReloadResult{OK: true, TelegramChanged: changed}, nil
	}

	runtime.OnReflection = func(events []memory.BroadcastEvent) {
		for _, e := range events {
			kind := daemon.EventReflectionInsight
			if e.Kind == memory.EventBeliefAdded {
				kind = daemon.EventBeliefAdded
			}
			srv.Broadcast(daemon.Event{Kind: kind, Payload: e.Entry})
		}
	}

	passiveSleep, multiAgentSleep, runProactive := srv.SchedulerHooks()
	sched := scheduler.New(cfg.Scheduler, scheduler.Hooks{
		RunPassiveSleep:    passiveSleep,
		RunMultiAgentSleep: multiAgentSleep,
		RunProactive:       runProactive,
		LastConversationAt: sessions.LastAt,
	})
	cell.Scheduler = sched

	executor.OnApprovalRequest = func(approvalID, toolName, toolArgs, description string) {
		srv.Broadcast(daemon.Event{Kind: daemon.EventApprovalRequest, Payload: map[string]string{
			"approval_id": approvalID,
			"tool":        toolName,
			"args":        toolArgs,
			"description": description,
		}})
	}

	if err := srv.Listen(); err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.SocketPath, err)
	}
	go srv.Serve()

	stopScheduler := sched.Start(ctx)

	logger.Info("aigent daemon started", "socket", cfg.SocketPath, "data_root", cfg.DataRoot)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case <-srv.ShutdownRequested():
		logger.Info("shutdown requested over socket")
	}

	// stopScheduler is called here rather than threaded through
	// daemon.New's constructor-time stopScheduler parameter, since the
	// Scheduler itself doesn't exist until after Server.SchedulerHooks runs;
	// Server.Shutdown's own (nil) stopScheduler call is then a no-op.
	stopScheduler()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), daemon.ShutdownDrainTimeout+10*time.Second)
	defer shutdownCancel()

	finalSleep := func(ctx context.Context) (any, error) {
		provider, _ := selector.ForTurn("")
		return mem.RunAgenticSleep(ctx, provider)
	}
	if err := srv.Shutdown(shutdownCtx, finalSleep); err != nil {
		logger.Warn("shutdown sequence reported an error", "err", err)
	}
	_ = os.Remove(pidFilePath(cfg))
	return nil
}
