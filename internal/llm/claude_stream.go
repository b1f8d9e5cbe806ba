package llm

import (
	"context"
	"fmt"
)

// ChatStream streams the assistant's reply token-by-token. The SDK client
// call itself is non-streaming here (matching the teacher's Chat/ChatWithTools
// shape); the response is chunked on word boundaries into the returned
// channel so every caller of the uniform LLM interface gets the same
// streaming shape regardless of provider.
func (c *claude) ChatStream(ctx context.Context, systemPrompt string, messages []Message, opts ChatOptions) (<-chan StreamToken, error) {
	out := make(chan StreamToken, 8)
	go func() {
		defer close(out)
		resp, err := c.ChatWithTools(ctx, systemPrompt, messages, opts.Tools)
		if err != nil {
			select {
			case out <- StreamToken{Err: err, Done: true}:
			case <-ctx.Done():
			}
			return
		}
		emitChunked(ctx, out, resp.Content)
	}()
	return out, nil
}

// Embed is not supported by the Claude messages API; callers must treat a
// returned error as "embedding backend unavailable" and redistribute
// retrieval weights accordingly (spec §4.5, §7).
func (c *claude) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("claude provider does not support embeddings")
}

// emitChunked splits content into word-sized StreamTokens and writes them to
// out in order, terminating with a Done token.
func emitChunked(ctx context.Context, out chan<- StreamToken, content string) {
	start := 0
	for i := 0; i <= len(content); i++ {
		if i == len(content) || content[i] == ' ' {
			if i > start {
				chunk := content[start:i]
				if i < len(content) {
					chunk += " "
				}
				select {
				case out <- StreamToken{Content: chunk}:
				case <-ctx.Done():
					return
				}
			}
			start = i + 1
		}
	}
	select {
	case out <- StreamToken{Done: true}:
	case <-ctx.Done():
	}
}
