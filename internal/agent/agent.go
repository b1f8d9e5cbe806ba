package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/aigent/aigent/internal/llm"
	"github.com/aigent/aigent/internal/logger"
	"github.com/aigent/aigent/internal/memory"
	"github.com/aigent/aigent/internal/session"
	"github.com/aigent/aigent/internal/tools"
)

const defaultContextLimit = 12

// New assembles a Runtime from its already-constructed parts. Callers
// (cmd/aigent, and eventually internal/daemon) own the lifetime of each
// component; Runtime only orchestrates calls across them.
func New(selector *llm.Selector, mem *memory.MemoryManager, executor *tools.Executor, sessions *session.Store, contextLimit int, toolTimeout time.Duration) *Runtime {
	if contextLimit <= 0 {
		contextLimit = defaultContextLimit
	}
	return &Runtime{
		Selector:     selector,
		Memory:       mem,
		Executor:     executor,
		Sessions:     sessions,
		ContextLimit: contextLimit,
		ToolTimeout:  toolTimeout,
	}
}

// ProcessTurn runs spec §4.10's per-turn flow: C12 identity + C5 ranked
// context are pulled in by ComposeTurnPrompt, C13 performs a brief
// tool-intent probe, C9 executes at most one selected tool — firing
// onToolEvent immediately before and after, so a caller can broadcast
// ToolCallStart/End ahead of the response tokens streamed next — and
// records it into memory via C1, C13 streams the main response, both sides
// of the exchange are persisted, and C6's reflection plus a C3 vault
// re-emit run as a fire-and-forget background pass once the turn itself has
// returned.
func (r *Runtime) ProcessTurn(ctx context.Context, userMessage, source string, onToken TokenFunc, onToolEvent ToolEventFunc) (TurnResult, error) {
	provider, cleaned := r.Selector.ForTurn(userMessage)

	recent := r.Sessions.Recent(r.ContextLimit)
	queryEmbedding := r.embedQuery(ctx, provider, cleaned)

	var result TurnResult
	toolResultText := ""

	if r.Executor != nil {
		call, ok, err := r.probeToolIntent(ctx, provider, cleaned, recent)
		if err != nil {
			logger.Warn("tool-intent probe failed", "err", err)
		} else if ok {
			if onToolEvent != nil {
				onToolEvent(call, nil)
			}
			toolRes, execErr := r.Executor.Execute(ctx, call)
			if execErr != nil {
				return TurnResult{}, fmt.Errorf("tool execution aborted: %w", execErr)
			}
			result.ToolCall = &call
			result.ToolResult = &toolRes
			toolResultText = formatToolResult(call, toolRes)
			if onToolEvent != nil {
				onToolEvent(call, &toolRes)
			}
		}
	}

	prompt := r.Memory.ComposeTurnPrompt(cleaned, queryEmbedding, recent, r.ContextLimit)
	if toolResultText != "" {
		prompt += "\n\nTOOL RESULT:\n" + toolResultText
	}

	response, err := r.streamResponse(ctx, provider, prompt, onToken)
	if err != nil {
		return TurnResult{}, fmt.Errorf("generate response: %w", err)
	}
	result.Response = response

	r.Sessions.Add(memory.ConversationTurn{
		Source:        source,
		UserText:      cleaned,
		AssistantText: response,
		Timestamp:     time.Now().UTC(),
	})

	if err := r.Memory.Append(memory.NewEntry(memory.TierEpisodic, cleaned, "user")); err != nil {
		logger.Warn("failed to persist user turn", "err", err)
	}
	if err := r.Memory.Append(memory.NewEntry(memory.TierEpisodic, response, "assistant")); err != nil {
		logger.Warn("failed to persist assistant turn", "err", err)
	}

	go r.reflectAndReemit(provider, cleaned, response)

	return result, nil
}

// streamResponse drives C13's ChatStream for the main response through
// C13's retry-once-then-cloud-fallback policy (spec §7), forwarding each
// token to onToken in generation order and returning the assembled text
// once the stream closes.
func (r *Runtime) streamResponse(ctx context.Context, provider llm.LLM, prompt string, onToken TokenFunc) (string, error) {
	return r.Selector.ChatStreamWithFallback(ctx, provider, "", []llm.Message{{Role: "user", Content: prompt}}, llm.ChatOptions{}, onToken)
}

// embedQuery resolves a query embedding when the selected provider
// advertises embedding support, feeding C5's weight-redistribution fallback
// when it doesn't (spec §8: "embedding backend unavailable ... weight
// redistributed").
func (r *Runtime) embedQuery(ctx context.Context, provider llm.LLM, text string) []float32 {
	if !provider.Capabilities().Embedding {
		return nil
	}
	vec, err := provider.Embed(ctx, text)
	if err != nil {
		logger.Warn("query embedding failed, falling back to lexical-only retrieval", "err", err)
		return nil
	}
	return vec
}

// reflectAndReemit is the per-turn reflection task spec §4.10's threading
// model names, plus C3's "may re-emit vault files" pass. It runs detached
// from the originating request context so a client disconnect never
// truncates it.
func (r *Runtime) reflectAndReemit(provider llm.LLM, userMessage, assistantMessage string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	events, err := r.Memory.ReflectTurn(ctx, provider, userMessage, assistantMessage)
	if err != nil {
		logger.Warn("post-turn reflection failed", "err", err)
	} else if len(events) > 0 && r.OnReflection != nil {
		r.OnReflection(events)
	}

	if _, err := r.Memory.ExportVault(); err != nil {
		logger.Warn("post-turn vault re-emit failed", "err", err)
	}
}

func formatToolResult(call memory.ToolCall, result memory.ToolResult) string {
	if result.Success {
		return fmt.Sprintf("%s(%v) -> %s", call.Name, call.Args, result.Output)
	}
	return fmt.Sprintf("%s(%v) -> error: %s", call.Name, call.Args, result.Error)
}
