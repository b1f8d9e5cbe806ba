package tools

import (
	"context"

	"github.com/aigent/aigent/internal/memory"
)

// Handler executes one tool invocation. args is the raw JSON object the LLM
// produced for the call. The Executor does not cap output; run_shell and
// WASM guest handlers cap their own output at 256 KB.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Source distinguishes the two registration paths competing for a name
// under first-match-wins resolution (spec §4.9).
type Source string

const (
	SourceNative Source = "native"
	SourceWASM   Source = "wasm"
)

// entry is one registered tool: its LLM-facing spec, its handler, and where
// it came from (used only for diagnostics / `aigent tool list`).
type entry struct {
	spec    memory.ToolSpec
	handler Handler
	source  Source
}

// ReadOnlyTools is the fixed read-only classification spec §4.9 step 3
// keys the Balanced approval mode off of.
var ReadOnlyTools = map[string]bool{
	"read_file":          true,
	"web_search":         true,
	"calendar_add_event": true,
	"remind_me":          true,
	"git_rollback":       true,
}

// NativeToolNames is the baseline set (spec §4.9): "Native tool set
// (baseline): read_file, write_file, run_shell, calendar_add_event,
// web_search, draft_email, remind_me, git_rollback."
var NativeToolNames = []string{
	"read_file", "write_file", "run_shell",
	"calendar_add_event", "web_search", "draft_email", "remind_me", "git_rollback",
}
