package agent

import (
	"time"

	"github.com/aigent/aigent/internal/llm"
	"github.com/aigent/aigent/internal/memory"
	"github.com/aigent/aigent/internal/session"
	"github.com/aigent/aigent/internal/tools"
)

// TokenFunc receives one streamed content chunk of the main response as it
// generates (spec §4.10: "streaming tokens appear in generation order").
type TokenFunc func(content string)

// ToolEventFunc is invoked twice around a probed tool's execution — once
// with result nil right before Executor.Execute runs, once with the
// populated result right after — so a caller broadcasting ToolCallStart/
// ToolCallEnd can publish them in execution order, ahead of the response
// tokens ProcessTurn streams afterward (spec §5: "tool call (if any)
// precedes streaming tokens").
type ToolEventFunc func(call memory.ToolCall, result *memory.ToolResult)

// ReflectionFunc receives the broadcast events C6's post-turn reflection
// produced, once the fire-and-forget pass completes.
type ReflectionFunc func(events []memory.BroadcastEvent)

// Runtime composes C5/C6/C9/C12/C13 into the single state cell spec §4.10
// names: "a single shared mutex-guarded cell (MemoryManager, AgentRuntime,
// ToolRegistry, ...)". The mutex itself belongs to the daemon layer, which
// takes this value out, operates on it lock-free, and puts it back; Runtime
// holds no lock of its own.
type Runtime struct {
	Selector *llm.Selector
	Memory   *memory.MemoryManager
	Executor *tools.Executor
	Sessions *session.Store

	ContextLimit int
	ToolTimeout  time.Duration

	OnReflection ReflectionFunc
}

// TurnResult is everything one SubmitTurn produces for the daemon to
// persist and report; broadcast of streamed tokens already happened via
// the TokenFunc passed to ProcessTurn.
type TurnResult struct {
	Response   string
	ToolCall   *memory.ToolCall
	ToolResult *memory.ToolResult
}
