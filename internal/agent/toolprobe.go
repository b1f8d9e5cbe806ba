package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aigent/aigent/internal/llm"
	"github.com/aigent/aigent/internal/memory"
)

const toolProbePrompt = `Decide whether answering the user's next message requires calling one of your available tools first. Most messages don't. If a tool is needed, call exactly one. If not, respond with the single word NONE and nothing else.`

// probeToolIntent runs spec §4.10's "brief tool-intent probe": a single,
// non-streaming ChatWithTools call scoped to deciding whether one tool
// call is warranted before the main response is generated. It never
// streams and never itself produces the user-facing reply.
func (r *Runtime) probeToolIntent(ctx context.Context, provider llm.LLM, userMessage string, recent []memory.ConversationTurn) (memory.ToolCall, bool, error) {
	specs := r.Executor.Registry.Specs()
	if len(specs) == 0 {
		return memory.ToolCall{}, false, nil
	}

	messages := make([]llm.Message, 0, len(recent)+1)
	for _, turn := range recent {
		messages = append(messages,
			llm.Message{Role: "user", Content: turn.UserText},
			llm.Message{Role: "assistant", Content: turn.AssistantText},
		)
	}
	messages = append(messages, llm.Message{Role: "user", Content: userMessage})

	resp, err := provider.ChatWithTools(ctx, toolProbePrompt, messages, toLLMTools(specs))
	if err != nil {
		return memory.ToolCall{}, false, fmt.Errorf("tool probe chat: %w", err)
	}
	if len(resp.ToolCalls) == 0 {
		return memory.ToolCall{}, false, nil
	}

	tc := resp.ToolCalls[0]
	args := map[string]any{}
	if strings.TrimSpace(tc.Arguments) != "" {
		if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
			return memory.ToolCall{}, false, fmt.Errorf("parse tool call arguments: %w", err)
		}
	}
	return memory.ToolCall{Name: tc.Name, Args: args}, true, nil
}

// toLLMTools converts the registry's LLM-facing specs into the JSON-schema
// shape C13's provider implementations expect (spec §4.13's uniform
// ChatWithTools surface).
func toLLMTools(specs []memory.ToolSpec) []llm.Tool {
	out := make([]llm.Tool, 0, len(specs))
	for _, spec := range specs {
		properties := map[string]any{}
		var required []string
		for _, p := range spec.Params {
			properties[p.Name] = map[string]any{
				"type":        "string",
				"description": p.Description,
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		out = append(out, llm.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		})
	}
	return out
}
