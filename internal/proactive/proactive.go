// Package proactive implements C11: the daemon's "do I have something
// worth sharing right now?" task (spec §4.11). The DND window, interval,
// and cooldown gating all live in internal/scheduler; this package only
// builds the identity-grounded prompt, calls the model, and parses its
// structured answer.
package proactive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aigent/aigent/internal/llm"
)

// Action is the LLM's decision about whether this firing has anything
// worth surfacing.
type Action string

const (
	ActionShare Action = "share"
	ActionNone  Action = "none"
)

// Result is the structured response spec §4.11 names: {action, message,
// urgency}. Urgency is carried as metadata only (SPEC_FULL open question
// resolution: it does not affect delivery priority).
type Result struct {
	Action  Action `json:"action"`
	Message string `json:"message"`
	Urgency string `json:"urgency"`
}

// HasMessage reports whether the result carries something to broadcast.
func (r Result) HasMessage() bool {
	return r.Action == ActionShare && strings.TrimSpace(r.Message) != ""
}

const promptTemplate = `%s

You are deciding, right now, whether you have something genuinely worth proactively telling your user — not a generic check-in, only something concrete: a reminder that is due, a reflection you reached that they'd want to hear, a follow-up on something they mentioned, or similar. Most firings should have nothing to say.

Return a JSON object: {"action": "share" or "none", "message": "...", "urgency": "low"|"normal"|"high"}. If action is "none", message must be empty.

JSON only, no explanation:`

// Run builds the identity-grounded prompt and asks the model for a
// proactive decision (spec §4.11).
func Run(ctx context.Context, model llm.LLM, identityContext string) (Result, error) {
	prompt := fmt.Sprintf(promptTemplate, identityContext)
	response, err := model.Chat(ctx, "", []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return Result{}, fmt.Errorf("proactive chat: %w", err)
	}
	return parseResult(response)
}

func parseResult(response string) (Result, error) {
	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start < 0 || end < start {
		return Result{Action: ActionNone}, nil
	}

	var r Result
	if err := json.Unmarshal([]byte(response[start:end+1]), &r); err != nil {
		return Result{Action: ActionNone}, fmt.Errorf("parse proactive response: %w", err)
	}
	if r.Action != ActionShare {
		r.Action = ActionNone
		r.Message = ""
	}
	return r, nil
}
