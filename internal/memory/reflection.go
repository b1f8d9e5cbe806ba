package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aigent/aigent/internal/llm"
)

const reflectionPrompt = `You are the reflection pass of a personal assistant's memory system. Given the exchange below, extract what is worth remembering.

Return a JSON object with two arrays:
- "beliefs": up to 3 entries, each {"claim": "...", "confidence": 0.0-1.0}. A belief is a durable fact or preference about the user or the assistant itself, stated plainly.
- "reflections": up to 2 free-form strings capturing an observation, pattern, or insight about the conversation that does not fit a belief claim.

Only extract what is explicitly stated or strongly implied. If nothing qualifies, return empty arrays.

Exchange:
user: %s
assistant: %s

JSON only, no explanation:`

// ReflectionResult is the structured extraction produced by one inline
// reflection pass (spec §4.6).
type ReflectionResult struct {
	Beliefs     []ReflectedBelief `json:"beliefs"`
	Reflections []string          `json:"reflections"`
}

type ReflectedBelief struct {
	Claim      string  `json:"claim"`
	Confidence float64 `json:"confidence"`
}

const (
	maxReflectedBeliefs     = 3
	maxReflectedReflections = 2
)

// BroadcastEvent mirrors the daemon's BackendEvent shape closely enough for
// the memory package to emit BeliefAdded/ReflectionInsight without importing
// the daemon package (spec §4.10 broadcast events).
type BroadcastEvent struct {
	Kind    string
	Entry   Entry
}

const (
	EventBeliefAdded       = "BeliefAdded"
	EventReflectionInsight = "ReflectionInsight"
)

// Reflect runs the non-streaming structured extraction call against the
// original user/assistant exchange (never the tool-augmented prompt, per
// spec §4.6) and returns the parsed result. Extraction failures are returned
// to the caller rather than swallowed, since inline reflection is invoked as
// a fire-and-forget background task by the daemon and the caller decides
// how to log it.
func Reflect(ctx context.Context, model llm.LLM, userMessage, assistantMessage string) (ReflectionResult, error) {
	prompt := fmt.Sprintf(reflectionPrompt, userMessage, assistantMessage)
	response, err := model.Chat(ctx, "", []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return ReflectionResult{}, fmt.Errorf("reflection chat: %w", err)
	}
	return parseReflection(response)
}

func parseReflection(response string) (ReflectionResult, error) {
	response = strings.TrimSpace(response)
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return ReflectionResult{}, fmt.Errorf("no JSON object found in reflection response")
	}

	var result ReflectionResult
	if err := json.Unmarshal([]byte(response[start:end+1]), &result); err != nil {
		return ReflectionResult{}, fmt.Errorf("unmarshal reflection response: %w", err)
	}
	if len(result.Beliefs) > maxReflectedBeliefs {
		result.Beliefs = result.Beliefs[:maxReflectedBeliefs]
	}
	if len(result.Reflections) > maxReflectedReflections {
		result.Reflections = result.Reflections[:maxReflectedReflections]
	}
	return result, nil
}

// ApplyReflection converts a ReflectionResult into new memory Entries ready
// for Append, and the BroadcastEvent each one must raise (spec §4.6: each
// persisted item broadcasts BeliefAdded or ReflectionInsight).
func ApplyReflection(result ReflectionResult, source string) ([]Entry, []BroadcastEvent) {
	var entries []Entry
	var events []BroadcastEvent

	for _, b := range result.Beliefs {
		claim := strings.TrimSpace(b.Claim)
		if claim == "" {
			continue
		}
		e := NewEntry(TierCore, claim, "belief")
		e.Confidence = clamp01(b.Confidence)
		entries = append(entries, e)
		events = append(events, BroadcastEvent{Kind: EventBeliefAdded, Entry: e})
	}

	for _, r := range result.Reflections {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		e := NewEntry(TierReflective, r, source)
		e.Confidence = 0.6
		entries = append(entries, e)
		events = append(events, BroadcastEvent{Kind: EventReflectionInsight, Entry: e})
	}

	return entries, events
}
