package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aigent/aigent/internal/config"
	"github.com/aigent/aigent/internal/daemon"
)

// runOnboard walks the one-time setup wizard spec §6 names (`aigent
// onboard`): pick an approval mode and the two model identifiers, persist
// them via RuntimeConfig so they survive a restart without touching .env.
func runOnboard() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runtimeCfg, err := config.NewRuntimeConfig(cfg.DataRoot)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(os.Stdin)
	ask := func(prompt, def string) string {
		fmt.Printf("%s [%s]: ", prompt, def)
		if !scanner.Scan() {
			return def
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return def
		}
		return line
	}

	mode := ask("Approval mode (safer/balanced/autonomous)", string(cfg.Execution.ApprovalMode))
	if err := runtimeCfg.Set("approval_mode", mode); err != nil {
		return err
	}

	localModel := ask("Local model (Ollama)", cfg.LLM.Local.Model)
	if err := runtimeCfg.Set("local_model", localModel); err != nil {
		return err
	}

	cloudModel := ask("Cloud model (Claude)", cfg.LLM.Cloud.Model)
	if err := runtimeCfg.Set("cloud_model", cloudModel); err != nil {
		return err
	}

	fmt.Printf("Onboarding complete. Data root: %s. Run `aigent daemon start` next.\n", cfg.DataRoot)
	return nil
}

// runConfiguration handles `aigent configuration [get|set key value]` (spec
// §6), a thin CLI over config.RuntimeConfig.
func runConfiguration(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runtimeCfg, err := config.NewRuntimeConfig(cfg.DataRoot)
	if err != nil {
		return err
	}

	if len(args) == 0 || args[0] == "get" {
		for k, v := range runtimeCfg.All() {
			fmt.Printf("%s = %s\n", k, v)
		}
		return nil
	}

	if args[0] == "set" {
		if len(args) != 3 {
			return fmt.Errorf("usage: aigent configuration set <key> <value>")
		}
		return runtimeCfg.Set(args[1], args[2])
	}

	return fmt.Errorf("unknown configuration subcommand %q (try: get, set)", args[0])
}

// dispatchMemory handles `aigent memory {stats,inspect-core,promotions,
// peek,recent,sleep,multiagent-sleep,export-vault,wipe,proactive}` (spec
// §6), each a thin RPC over the socket.
func dispatchMemory(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: aigent memory {stats|inspect-core|promotions|peek|recent|sleep|multiagent-sleep|export-vault|wipe|proactive} [args]")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := dialDaemon(cfg.SocketPath)
	if err != nil {
		return err
	}
	defer client.Close()

	limit := 20
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			limit = n
		}
	}

	switch args[0] {
	case "stats":
		ev, err := client.Call(daemon.CmdGetStatus, nil, nil)
		return printResult(ev, err)
	case "inspect-core":
		ev, err := client.Call(daemon.CmdInspectCore, nil, nil)
		return printResult(ev, err)
	case "promotions":
		ev, err := client.Call(daemon.CmdGetPromotions, nil, nil)
		return printResult(ev, err)
	case "peek":
		ev, err := client.Call(daemon.CmdGetMemoryPeek, daemon.LimitPayload{Limit: limit}, nil)
		return printResult(ev, err)
	case "recent":
		ev, err := client.Call(daemon.CmdGetRecentContext, daemon.LimitPayload{Limit: limit}, nil)
		return printResult(ev, err)
	case "sleep":
		ev, err := client.Call(daemon.CmdRunSleepCycle, nil, nil)
		return printResult(ev, err)
	case "multiagent-sleep":
		ev, err := client.Call(daemon.CmdRunMultiAgentSleepCycle, nil, nil)
		return printResult(ev, err)
	case "export-vault":
		remote := false
		for _, a := range args[1:] {
			if a == "--remote" {
				remote = true
			}
		}
		ev, err := client.Call(daemon.CmdExportVault, daemon.ExportVaultPayload{Remote: remote}, nil)
		return printResult(ev, err)
	case "wipe":
		return dispatchMemoryWipe(client, args[1:])
	case "proactive":
		return dispatchMemoryProactive(client, args[1:])
	default:
		return fmt.Errorf("unknown memory subcommand %q", args[0])
	}
}

// dispatchMemoryWipe handles `aigent memory wipe --layer L --yes`: both
// flags are required so a bare `wipe` never destroys a tier by accident,
// mirroring runReset's --hard/--yes discipline.
func dispatchMemoryWipe(client *daemonClient, args []string) error {
	var layer string
	yes := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--layer":
			if i+1 >= len(args) {
				return fmt.Errorf("--layer requires a value")
			}
			i++
			layer = args[i]
		case "--yes":
			yes = true
		}
	}
	if layer == "" || !yes {
		return fmt.Errorf("usage: aigent memory wipe --layer <tier> --yes")
	}
	ev, err := client.Call(daemon.CmdWipeMemory, daemon.WipeMemoryPayload{Layer: layer}, nil)
	return printResult(ev, err)
}

// dispatchMemoryProactive handles `aigent memory proactive {check,stats}`.
func dispatchMemoryProactive(client *daemonClient, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: aigent memory proactive {check|stats}")
	}
	switch args[0] {
	case "check":
		ev, err := client.Call(daemon.CmdTriggerProactive, nil, nil)
		return printResult(ev, err)
	case "stats":
		ev, err := client.Call(daemon.CmdGetProactiveStats, nil, nil)
		return printResult(ev, err)
	default:
		return fmt.Errorf("unknown memory proactive subcommand %q", args[0])
	}
}

// dispatchTool handles `aigent tool {list,exec}` (spec §6): list the
// resolved tool registry, or execute one tool directly for diagnostics.
func dispatchTool(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: aigent tool {list|exec <name> [json-args]}")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := dialDaemon(cfg.SocketPath)
	if err != nil {
		return err
	}
	defer client.Close()

	switch args[0] {
	case "list":
		ev, err := client.Call(daemon.CmdListTools, nil, nil)
		return printResult(ev, err)
	case "exec":
		if len(args) < 2 {
			return fmt.Errorf("usage: aigent tool exec <name> [json-args]")
		}
		toolArgs := map[string]any{}
		if len(args) > 2 {
			if err := json.Unmarshal([]byte(args[2]), &toolArgs); err != nil {
				return fmt.Errorf("invalid json-args: %w", err)
			}
		}
		ev, err := client.Call(daemon.CmdExecuteTool, daemon.ExecuteToolPayload{Name: args[1], Args: toolArgs}, nil)
		return printResult(ev, err)
	default:
		return fmt.Errorf("unknown tool subcommand %q", args[0])
	}
}

// dispatchTools handles `aigent tools {build,status}` (spec §6): discover
// and optionally compile the WASM guest tools under the extensions
// directory's `tools-src/<crate>` sub-workspace layout (spec §4.9).
func dispatchTools(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: aigent tools {build|status}")
	}

	switch args[0] {
	case "status":
		return toolsStatus(cfg.Extensions.Dir)
	case "build":
		return toolsBuild(cfg.Extensions.Dir)
	default:
		return fmt.Errorf("unknown tools subcommand %q", args[0])
	}
}

func toolsStatus(extensionsDir string) error {
	entries, err := os.ReadDir(extensionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("extensions dir %s does not exist yet\n", extensionsDir)
			return nil
		}
		return err
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
	return nil
}

// toolsBuild shells out to `cargo build --release --target wasm32-wasip1`
// for every crate under tools-src/, the compile step spec §4.9's nested
// discovery layout assumes already ran.
func toolsBuild(extensionsDir string) error {
	crates, err := filepath.Glob(filepath.Join(extensionsDir, "tools-src", "*"))
	if err != nil {
		return err
	}
	if len(crates) == 0 {
		fmt.Println("no tools-src crates found")
		return nil
	}
	for _, crate := range crates {
		fmt.Printf("building %s...\n", crate)
		cmd := exec.Command("cargo", "build", "--release", "--target", "wasm32-wasip1")
		cmd.Dir = crate
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("build %s: %w", crate, err)
		}
	}
	return nil
}

// runDoctor handles `aigent doctor` (spec §6): a dependency-free health
// check of the data root, socket, local/cloud LLM reachability, and host
// resources — the same kind of system-resource reporting the example pack's
// gopsutil-based homelab agent does for its own health endpoint.
func runDoctor(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ok := true
	check := func(name string, err error) {
		if err != nil {
			fmt.Printf("[FAIL] %s: %v\n", name, err)
			ok = false
			return
		}
		fmt.Printf("[ OK ] %s\n", name)
	}

	check("data root writable", checkWritable(cfg.DataRoot))

	_, pingErr := func() (daemon.Event, error) {
		client, err := dialDaemon(cfg.SocketPath)
		if err != nil {
			return daemon.Event{}, err
		}
		defer client.Close()
		return client.Call(daemon.CmdPing, nil, nil)
	}()
	check("daemon socket reachable", pingErr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, ollamaErr := config.LocalModels(ctx, cfg.LLM.Local.BaseURL)
	check("ollama reachable ("+cfg.LLM.Local.BaseURL+")", ollamaErr)

	if cfg.LLM.Cloud.APIKey == "" {
		check("cloud provider API key set", fmt.Errorf("OPENROUTER_API_KEY not set"))
	} else {
		check("cloud provider API key set", nil)
	}

	if m, err := mem.VirtualMemory(); err == nil {
		fmt.Printf("[INFO] memory used: %.1f%%\n", m.UsedPercent)
	}
	if d, err := disk.Usage(cfg.DataRoot); err == nil {
		fmt.Printf("[INFO] disk used (%s): %.1f%%\n", cfg.DataRoot, d.UsedPercent)
	}

	if !ok {
		return fmt.Errorf("doctor found issues")
	}
	return nil
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".doctor-write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}

// runReset handles `aigent reset --hard --yes` (spec §6): irreversibly
// wipes the entire data root. Both flags are required so a bare `reset`
// never destroys anything by accident.
func runReset(args []string) error {
	hard, yes := false, false
	for _, a := range args {
		switch a {
		case "--hard":
			hard = true
		case "--yes":
			yes = true
		}
	}
	if !hard || !yes {
		return fmt.Errorf("refusing to reset without both --hard and --yes")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if pid, alive := readAlivePID(cfg); alive {
		return fmt.Errorf("daemon is running (pid %d); stop it first with `aigent daemon stop`", pid)
	}

	fmt.Printf("removing %s\n", cfg.DataRoot)
	return os.RemoveAll(cfg.DataRoot)
}

func printResult(ev daemon.Event, err error) error {
	if err != nil {
		return err
	}
	data, _ := json.MarshalIndent(ev.Payload, "", "  ")
	fmt.Println(string(data))
	return nil
}
