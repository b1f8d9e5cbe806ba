package proactive

import (
	"context"
	"testing"

	"github.com/aigent/aigent/internal/llm"
)

type stubModel struct {
	reply string
	err   error
}

func (s *stubModel) Chat(ctx context.Context, systemPrompt string, messages []llm.Message) (string, error) {
	return s.reply, s.err
}
func (s *stubModel) ChatWithTools(ctx context.Context, systemPrompt string, messages []llm.Message, tools []llm.Tool) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: s.reply}, s.err
}
func (s *stubModel) ChatStream(ctx context.Context, systemPrompt string, messages []llm.Message, opts llm.ChatOptions) (<-chan llm.StreamToken, error) {
	return nil, nil
}
func (s *stubModel) Embed(ctx context.Context, text string) ([]float32, error) { return nil, nil }
func (s *stubModel) Capabilities() llm.Capabilities                            { return llm.Capabilities{} }
func (s *stubModel) Provider() string                                          { return "stub" }
func (s *stubModel) Model() string                                             { return "stub-model" }

func TestRunParsesShareResult(t *testing.T) {
	model := &stubModel{reply: `{"action": "share", "message": "your dentist reminder fires in 10 minutes", "urgency": "normal"}`}
	result, err := Run(context.Background(), model, "identity context")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.HasMessage() {
		t.Fatalf("expected a message, got %+v", result)
	}
	if result.Message != "your dentist reminder fires in 10 minutes" {
		t.Errorf("unexpected message: %q", result.Message)
	}
}

func TestRunParsesNoneResult(t *testing.T) {
	model := &stubModel{reply: `{"action": "none", "message": "", "urgency": "low"}`}
	result, err := Run(context.Background(), model, "identity context")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.HasMessage() {
		t.Errorf("expected no message, got %+v", result)
	}
}

func TestRunTreatsMalformedJSONAsNone(t *testing.T) {
	model := &stubModel{reply: "I don't think I have anything to share."}
	result, err := Run(context.Background(), model, "identity context")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.HasMessage() {
		t.Errorf("expected no message for non-JSON reply, got %+v", result)
	}
}

func TestRunPropagatesChatError(t *testing.T) {
	model := &stubModel{err: context.DeadlineExceeded}
	if _, err := Run(context.Background(), model, "identity context"); err == nil {
		t.Fatal("expected error to propagate")
	}
}
