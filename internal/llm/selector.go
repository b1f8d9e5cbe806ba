package llm

import (
	"context"
	"strings"
)

const fallbackDirective = "/fallback"

// Selector implements spec §4.13's per-turn provider selection: local-first,
// with the literal "/fallback" directive in a user message forcing the cloud
// provider for that single turn only. Model identifiers are kept strictly
// per-provider and are never forwarded across providers.
type Selector struct {
	Local LLM
	Cloud LLM
}

// ForTurn strips a leading "/fallback" directive from userMessage (if
// present) and returns the provider that turn should use plus the cleaned
// message text.
func (s *Selector) ForTurn(userMessage string) (LLM, string) {
	trimmed := strings.TrimSpace(userMessage)
	if strings.HasPrefix(trimmed, fallbackDirective) {
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, fallbackDirective))
		if s.Cloud != nil {
			return s.Cloud, rest
		}
	}
	if s.Local != nil {
		return s.Local, userMessage
	}
	return s.Cloud, userMessage
}

// ChatWithFallback runs the primary selection for this turn and, on any
// provider error, retries once on the same provider, then falls back to the
// cloud provider per spec §7's LLM provider error policy ("retry once, then
// fall back per /fallback rules for turns").
func (s *Selector) ChatWithFallback(ctx context.Context, userMessage, systemPrompt string, messages []Message, tools []Tool) (*ChatResponse, error) {
	provider, cleaned := s.ForTurn(userMessage)
	_ = cleaned

	resp, err := provider.ChatWithTools(ctx, systemPrompt, messages, tools)
	if err == nil {
		return resp, nil
	}
	resp, err = provider.ChatWithTools(ctx, systemPrompt, messages, tools)
	if err == nil {
		return resp, nil
	}
	if s.Cloud != nil && provider != s.Cloud {
		return s.Cloud.ChatWithTools(ctx, systemPrompt, messages, tools)
	}
	return nil, err
}

// ChatStreamWithFallback applies the same retry-once-then-cloud-fallback
// policy as ChatWithFallback to the streaming path (spec §7), for callers
// that already resolved provider via ForTurn and only need the error
// handling, not a second selection. A stream that fails after at least one
// token has been forwarded to onToken is not retried — only a failure on
// the opening ChatStream call (or a zero-token stream erroring immediately)
// triggers the retry/fallback, since silently replaying already-emitted
// tokens would violate spec §5's ordering guarantee.
func (s *Selector) ChatStreamWithFallback(ctx context.Context, provider LLM, systemPrompt string, messages []Message, opts ChatOptions, onToken func(content string)) (string, error) {
	attempt := func(p LLM) (string, error) {
		stream, err := p.ChatStream(ctx, systemPrompt, messages, opts)
		if err != nil {
			return "", err
		}
		var full []byte
		for tok := range stream {
			if tok.Err != nil {
				if len(full) > 0 {
					return string(full), tok.Err
				}
				return "", tok.Err
			}
			if tok.Content != "" {
				full = append(full, tok.Content...)
				if onToken != nil {
					onToken(tok.Content)
				}
			}
			if tok.Done {
				break
			}
		}
		return string(full), nil
	}

	text, err := attempt(provider)
	if err == nil {
		return text, nil
	}
	if text != "" {
		return text, err
	}
	text, err = attempt(provider)
	if err == nil {
		return text, nil
	}
	if text != "" {
		return text, err
	}
	if s.Cloud != nil && provider != s.Cloud {
		return attempt(s.Cloud)
	}
	return "", err
}
