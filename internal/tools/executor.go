package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aigent/aigent/internal/approval"
	"github.com/aigent/aigent/internal/logger"
	"github.com/aigent/aigent/internal/memory"
)

// ApprovalPublisher surfaces an ApprovalRequest to whatever is subscribed to
// the daemon's broadcast stream (spec §4.10); the Executor itself only
// needs to fire the notification and then block in approval.Manager.Wait.
type ApprovalPublisher func(approvalID, toolName, toolArgs, description string)

// Executor runs the full pipeline spec §4.9 describes for execute(name,
// args): lookup, policy gates, approval, handler execution under the
// timeout, git auto-commit, and Procedural persistence. Sandboxing, path
// confinement and output capping happen inside the handlers.
type Executor struct {
	Registry      *Registry
	Policy        Policy
	Approvals     *approval.Manager
	Memory        *memory.MemoryManager
	WorkspaceRoot string
	Timeout       time.Duration

	OnApprovalRequest ApprovalPublisher
}

// Execute runs one tool call end to end and always returns a ToolResult —
// pipeline failures are encoded in the result, not returned as a Go error,
// except for context cancellation, which propagates so the caller's turn
// can abort (spec §7: "Tool path escape / size / denied / not-allowed ...
// ToolResult{success:false, error} returned and streamed").
func (e *Executor) Execute(ctx context.Context, call memory.ToolCall) (memory.ToolResult, error) {
	entry, ok := e.Registry.lookup(call.Name)
	if !ok {
		return failResult(ErrUnknownTool), nil
	}

	if err := e.Policy.Gate(call.Name); err != nil {
		return failResult(err), nil
	}

	if e.Policy.RequiresApproval(call.Name) {
		approved, err := e.awaitApproval(ctx, call)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return memory.ToolResult{}, err
			}
			return failResult(err), nil
		}
		if !approved {
			return failResult(ErrRejected), nil
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if e.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	output, runErr := entry.handler(runCtx, call.Args)
	if runErr != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			result := failResult(ErrTimeout)
			e.persist(call, result)
			return result, nil
		}
		result := failResult(runErr)
		e.persist(call, result)
		return result, nil
	}

	if e.Policy.GitAutoCommit && (call.Name == "write_file" || call.Name == "run_shell") {
		autoCommit(e.WorkspaceRoot, call.Name, truncateDetail(output))
	}

	result := memory.ToolResult{Success: true, Output: output}
	e.persist(call, result)
	return result, nil
}

func (e *Executor) awaitApproval(ctx context.Context, call memory.ToolCall) (bool, error) {
	argsStr := fmt.Sprintf("%v", call.Args)
	description := fmt.Sprintf("run %s", call.Name)
	id := e.Approvals.Start(call.Name, argsStr, description)
	if e.OnApprovalRequest != nil {
		e.OnApprovalRequest(id, call.Name, argsStr, description)
	}
	return e.Approvals.Wait(ctx, id)
}

// persist records the outcome as a Procedural memory entry (spec §4.9 step
// 9: `source = "tool-use:<name>"`). Persistence failures are logged, not
// surfaced — the tool result itself already reached the caller.
func (e *Executor) persist(call memory.ToolCall, result memory.ToolResult) {
	if e.Memory == nil {
		return
	}
	content := fmt.Sprintf("tool %s called with %v -> success=%v output=%s", call.Name, call.Args, result.Success, truncateDetail(result.Output))
	if !result.Success {
		content = fmt.Sprintf("tool %s called with %v -> failed: %s", call.Name, call.Args, result.Error)
	}
	record := memory.NewEntry(memory.TierProcedural, content, "tool-use:"+call.Name)
	if err := e.Memory.Append(record); err != nil {
		logger.Warn("failed to persist tool-use entry", "tool", call.Name, "err", err)
	}
}

func failResult(err error) memory.ToolResult {
	return memory.ToolResult{Success: false, Error: err.Error()}
}

func truncateDetail(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
