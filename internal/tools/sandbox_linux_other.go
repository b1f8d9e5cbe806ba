//go:build linux && !amd64

package tools

import (
	"context"
	"os/exec"
)

// On non-amd64 Linux the syscall-number allow-list in
// sandbox_linux_amd64.go does not apply; fall back to workspace
// confinement only (spec §4.9 step 5: "Other platforms: no-op; workspace
// confinement remains").
func SandboxMain() {}

func buildSandboxedCmd(ctx context.Context, workspaceRoot, shell, script string, sandboxEnabled bool) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, shell, "-c", script)
	cmd.Dir = workspaceRoot
	return cmd, nil
}
