package tools

import (
	"context"
	"testing"
	"time"

	"github.com/aigent/aigent/internal/approval"
	"github.com/aigent/aigent/internal/memory"
)

func openTestMemory(t *testing.T) *memory.MemoryManager {
	t.Helper()
	root := t.TempDir()
	mgr, err := memory.OpenMemoryManager(memory.ManagerConfig{
		DataRoot: root,
	})
	if err != nil {
		t.Fatalf("open memory manager: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func newTestExecutor(t *testing.T, policy Policy) (*Executor, *Registry) {
	t.Helper()
	workspace := t.TempDir()
	r := NewRegistry()
	registerFSTools(r, workspace, 0)

	exec := &Executor{
		Registry:      r,
		Policy:        policy,
		Approvals:     approval.NewManager(200 * time.Millisecond),
		Memory:        openTestMemory(t),
		WorkspaceRoot: workspace,
		Timeout:       2 * time.Second,
	}
	return exec, r
}

func TestExecuteUnknownTool(t *testing.T) {
	exec, _ := newTestExecutor(t, DefaultPolicy())
	result, err := exec.Execute(context.Background(), memory.ToolCall{Name: "nope"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.Error != ErrUnknownTool.Error() {
		t.Errorf("expected UnknownTool failure, got %+v", result)
	}
}

func TestExecuteDenylisted(t *testing.T) {
	policy := DefaultPolicy()
	policy.ToolDenylist = map[string]bool{"write_file": true}
	exec, _ := newTestExecutor(t, policy)

	result, err := exec.Execute(context.Background(), memory.ToolCall{
		Name: "write_file",
		Args: map[string]any{"path": "a.txt", "content": "x"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.Error != ErrToolDenied.Error() {
		t.Errorf("expected ToolDenied failure, got %+v", result)
	}
}

func TestExecuteReadOnlyAutoApprovesUnderBalanced(t *testing.T) {
	policy := DefaultPolicy()
	policy.ApprovalMode = ApprovalBalanced
	exec, r := newTestExecutor(t, policy)

	writeEntry, _ := r.lookup("write_file")
	if _, err := writeEntry.handler(context.Background(), map[string]any{"path": "a.txt", "content": "hi"}); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	result, err := exec.Execute(context.Background(), memory.ToolCall{
		Name: "read_file",
		Args: map[string]any{"path": "a.txt"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.Output != "hi" {
		t.Errorf("expected auto-approved read to succeed, got %+v", result)
	}

	entries := exec.Memory.Entries()
	found := false
	for _, e := range entries {
		if e.Source == "tool-use:read_file" {
			found = true
		}
	}
	if !found {
		t.Error("expected a tool-use:read_file Procedural entry to be persisted")
	}
}

func TestExecuteWriteRequiresApprovalAndTimesOutWhenUnresolved(t *testing.T) {
	policy := DefaultPolicy()
	policy.ApprovalMode = ApprovalBalanced
	exec, _ := newTestExecutor(t, policy)

	result, err := exec.Execute(context.Background(), memory.ToolCall{
		Name: "write_file",
		Args: map[string]any{"path": "a.txt", "content": "hi"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Error("expected write_file to fail when approval times out unresolved")
	}
}

func TestExecuteAutonomousSkipsApproval(t *testing.T) {
	policy := DefaultPolicy()
	policy.ApprovalMode = ApprovalAutonomous
	exec, _ := newTestExecutor(t, policy)

	result, err := exec.Execute(context.Background(), memory.ToolCall{
		Name: "write_file",
		Args: map[string]any{"path": "a.txt", "content": "hi"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Errorf("expected autonomous mode to run write_file without approval, got %+v", result)
	}
}

func TestExecutePathEscapeSurfacesAsFailure(t *testing.T) {
	policy := DefaultPolicy()
	policy.ApprovalMode = ApprovalAutonomous
	exec, _ := newTestExecutor(t, policy)

	result, err := exec.Execute(context.Background(), memory.ToolCall{
		Name: "write_file",
		Args: map[string]any{"path": "../escape.txt", "content": "x"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.Error != ErrPathEscape.Error() {
		t.Errorf("expected PathEscape failure, got %+v", result)
	}
}

func TestExecuteApprovedWriteSucceeds(t *testing.T) {
	policy := DefaultPolicy()
	policy.ApprovalMode = ApprovalBalanced
	exec, _ := newTestExecutor(t, policy)
	exec.Approvals = approval.NewManager(2 * time.Second)

	exec.OnApprovalRequest = func(id, toolName, toolArgs, description string) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			_ = exec.Approvals.Resolve(id, true)
		}()
	}

	result, err := exec.Execute(context.Background(), memory.ToolCall{
		Name: "write_file",
		Args: map[string]any{"path": "approved.txt", "content": "ok"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Errorf("expected approved write to succeed, got %+v", result)
	}
}
