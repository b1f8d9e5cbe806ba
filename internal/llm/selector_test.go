package llm

import (
	"context"
	"testing"
)

type stubLLM struct {
	name string
}

func (s *stubLLM) Chat(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	return s.name, nil
}
func (s *stubLLM) ChatWithTools(ctx context.Context, systemPrompt string, messages []Message, tools []Tool) (*ChatResponse, error) {
	return &ChatResponse{Content: s.name}, nil
}
func (s *stubLLM) ChatStream(ctx context.Context, systemPrompt string, messages []Message, opts ChatOptions) (<-chan StreamToken, error) {
	ch := make(chan StreamToken, 1)
	ch <- StreamToken{Content: s.name, Done: true}
	close(ch)
	return ch, nil
}
func (s *stubLLM) Embed(ctx context.Context, text string) ([]float32, error) { return nil, nil }
func (s *stubLLM) Capabilities() Capabilities                                { return Capabilities{} }
func (s *stubLLM) Provider() string                                          { return s.name }
func (s *stubLLM) Model() string                                             { return "test-model" }

func TestSelectorDefaultsToLocal(t *testing.T) {
	sel := &Selector{Local: &stubLLM{name: "local"}, Cloud: &stubLLM{name: "cloud"}}
	provider, cleaned := sel.ForTurn("hello there")
	if provider.Provider() != "local" {
		t.Errorf("expected local provider by default, got %s", provider.Provider())
	}
	if cleaned != "hello there" {
		t.Errorf("expected message unchanged, got %q", cleaned)
	}
}

func TestSelectorFallbackDirectiveForcesCloud(t *testing.T) {
	sel := &Selector{Local: &stubLLM{name: "local"}, Cloud: &stubLLM{name: "cloud"}}
	provider, cleaned := sel.ForTurn("/fallback please use the strong model")
	if provider.Provider() != "cloud" {
		t.Errorf("expected cloud provider after /fallback, got %s", provider.Provider())
	}
	if cleaned != "please use the strong model" {
		t.Errorf("expected directive stripped, got %q", cleaned)
	}
}

type failingStreamLLM struct {
	stubLLM
	failures int
	calls    int
}

func (f *failingStreamLLM) ChatStream(ctx context.Context, systemPrompt string, messages []Message, opts ChatOptions) (<-chan StreamToken, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errStreamUnavailable
	}
	return f.stubLLM.ChatStream(ctx, systemPrompt, messages, opts)
}

var errStreamUnavailable = &streamError{"stream unavailable"}

type streamError struct{ msg string }

func (e *streamError) Error() string { return e.msg }

func TestChatStreamWithFallbackRetriesThenFallsBackToCloud(t *testing.T) {
	local := &failingStreamLLM{stubLLM: stubLLM{name: "local"}, failures: 2}
	cloud := &stubLLM{name: "cloud"}
	sel := &Selector{Local: local, Cloud: cloud}

	var tokens []string
	text, err := sel.ChatStreamWithFallback(context.Background(), local, "", nil, ChatOptions{}, func(c string) {
		tokens = append(tokens, c)
	})
	if err != nil {
		t.Fatalf("ChatStreamWithFallback: %v", err)
	}
	if text != "cloud" {
		t.Errorf("expected fallback to cloud provider's reply, got %q", text)
	}
	if local.calls != 2 {
		t.Errorf("expected exactly 2 attempts on the local provider before falling back, got %d", local.calls)
	}
}

func TestChatStreamWithFallbackSucceedsWithoutRetryWhenLocalHealthy(t *testing.T) {
	local := &stubLLM{name: "local"}
	sel := &Selector{Local: local, Cloud: &stubLLM{name: "cloud"}}

	text, err := sel.ChatStreamWithFallback(context.Background(), local, "", nil, ChatOptions{}, nil)
	if err != nil {
		t.Fatalf("ChatStreamWithFallback: %v", err)
	}
	if text != "local" {
		t.Errorf("expected local provider's reply, got %q", text)
	}
}
