// Command aigent is both the daemon process and its own CLI client: invoked
// with no arguments (or `start`) it becomes the long-lived C10 daemon;
// invoked with any other subcommand it talks to an already-running daemon
// over the local socket spec §6 names.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/aigent/aigent/internal/logger"
	"github.com/aigent/aigent/internal/tools"
)

func init() {
	_ = godotenv.Load()
}

func main() {
	// Must run before anything else: in the re-exec'd sandboxed shell child
	// this installs the seccomp filter and execve's the real command; in
	// the daemon's own process it is a no-op (spec §4.9 step 5).
	tools.SandboxMain()

	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"start"}
	}

	if err := dispatch(args[0], args[1:]); err != nil {
		logger.Error("aigent: command failed", "command", args[0], "err", err)
		os.Exit(1)
	}
}

func dispatch(cmd string, rest []string) error {
	switch cmd {
	case "start":
		return runDaemonForeground()
	case "onboard":
		return runOnboard()
	case "configuration":
		return runConfiguration(rest)
	case "daemon":
		return dispatchDaemon(rest)
	case "memory":
		return dispatchMemory(rest)
	case "tool":
		return dispatchTool(rest)
	case "tools":
		return dispatchTools(rest)
	case "doctor":
		return runDoctor(rest)
	case "reset":
		return runReset(rest)
	default:
		return fmt.Errorf("unknown command %q (try: start, onboard, configuration, daemon, memory, tool, tools, doctor, reset)", cmd)
	}
}
