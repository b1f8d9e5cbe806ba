//go:build !linux && !darwin

package tools

import (
	"context"
	"os/exec"
)

func SandboxMain() {}

func buildSandboxedCmd(ctx context.Context, workspaceRoot, shell, script string, sandboxEnabled bool) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, shell, "-c", script)
	cmd.Dir = workspaceRoot
	return cmd, nil
}
