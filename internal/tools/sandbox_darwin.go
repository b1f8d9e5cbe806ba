//go:build darwin

package tools

import (
	"context"
	"fmt"
	"os/exec"
)

func SandboxMain() {}

// sandboxProfile mirrors spec §4.9 step 5's macOS bullet: "an inline
// profile allowing workspace R/W, /tmp, standard libs, outbound TCP
// 80/443, process ops."
const sandboxProfile = `(version 1)
(deny default)
(allow file-read*)
(allow file-write* (subpath "%s") (subpath "/tmp"))
(allow process-exec)
(allow process-fork)
(allow sysctl-read)
(allow network-outbound (remote tcp "*:80") (remote tcp "*:443"))
`

func buildSandboxedCmd(ctx context.Context, workspaceRoot, shell, script string, sandboxEnabled bool) (*exec.Cmd, error) {
	if !sandboxEnabled {
		cmd := exec.CommandContext(ctx, shell, "-c", script)
		cmd.Dir = workspaceRoot
		return cmd, nil
	}
	profile := fmt.Sprintf(sandboxProfile, workspaceRoot)
	cmd := exec.CommandContext(ctx, "sandbox-exec", "-p", profile, shell, "-c", script)
	cmd.Dir = workspaceRoot
	return cmd, nil
}
