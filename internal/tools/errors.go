package tools

import "errors"

// Error taxonomy for the execution pipeline (spec §7: "Tool path escape /
// size / denied / not-allowed" -> no recovery, returned as ToolResult).
var (
	ErrUnknownTool   = errors.New("unknown tool")
	ErrToolDenied    = errors.New("tool denied by policy")
	ErrToolNotAllowed = errors.New("tool not in allowlist")
	ErrRejected      = errors.New("tool call rejected by approval")
	ErrPathEscape    = errors.New("path escapes workspace root")
	ErrFileTooLarge  = errors.New("file exceeds configured max size")
	ErrTimeout       = errors.New("timeout")
)
