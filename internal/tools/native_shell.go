package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/aigent/aigent/internal/memory"
)

const maxToolOutputBytes = 256 << 10

// capturedWriter caps the bytes accepted after the limit is reached,
// instead of growing unbounded, matching spec §4.9 step 7's "capture output
// with a 256 KB cap."
type capturedWriter struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (w *capturedWriter) Write(p []byte) (int, error) {
	if w.buf.Len() >= w.limit {
		w.truncated = true
		return len(p), nil
	}
	room := w.limit - w.buf.Len()
	if len(p) > room {
		w.buf.Write(p[:room])
		w.truncated = true
		return len(p), nil
	}
	return w.buf.Write(p)
}

func (w *capturedWriter) String() string {
	if w.truncated {
		return w.buf.String() + "\n...[truncated]"
	}
	return w.buf.String()
}

// registerShellTool wires run_shell. defaultTimeout applies when the
// Executor doesn't pass a shorter one through ctx.
func registerShellTool(r *Registry, workspaceRoot string, sandboxEnabled bool, defaultTimeout time.Duration) {
	r.RegisterNative(memory.ToolSpec{
		Name:        "run_shell",
		Description: "Run a shell command in the workspace, sandboxed when supported by the host platform.",
		Params: []memory.ToolParam{
			{Name: "command", Required: true, Description: "Shell command to execute via sh -c."},
		},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		command, _ := args["command"].(string)
		if command == "" {
			return "", fmt.Errorf("command is required")
		}

		runCtx := ctx
		var cancel context.CancelFunc
		if defaultTimeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, defaultTimeout)
			defer cancel()
		}

		cmd, err := buildSandboxedCmd(runCtx, workspaceRoot, "/bin/sh", command, sandboxEnabled)
		if err != nil {
			return "", err
		}
		out := &capturedWriter{limit: maxToolOutputBytes}
		cmd.Stdout = out
		cmd.Stderr = out

		runErr := cmd.Run()
		output := out.String()
		if runCtx.Err() == context.DeadlineExceeded {
			return output, fmt.Errorf("%w", ErrTimeout)
		}
		if runErr != nil {
			var exitErr *exec.ExitError
			if errors.As(runErr, &exitErr) {
				return output, fmt.Errorf("exit %d: %s", exitErr.ExitCode(), output)
			}
			return output, runErr
		}
		return output, nil
	})
}
