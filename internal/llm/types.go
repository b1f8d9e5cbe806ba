package llm

import "context"

// Config selects and configures one provider instance.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

type ImageContent struct {
	Data      []byte
	MediaType string
}

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
	MediaTypePDF   MediaType = "pdf"
)

type MediaContent struct {
	Type     MediaType
	MimeType string
	Data     []byte
}

type Message struct {
	Role       string
	Content    string
	Images     []ImageContent
	Media      []MediaContent
	ToolCalls  []ToolCall
	ToolCallID string
}

type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type ChatResponse struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
	Usage      *Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StreamToken is one chunk of a ChatStream response.
type StreamToken struct {
	Content string
	Done    bool
	Err     error
}

// Capabilities advertises what a provider instance supports, so callers can
// degrade gracefully (e.g. C5's embedding-absent weight redistribution).
type Capabilities struct {
	Vision     bool
	VideoInput bool
	PDFInput   bool
	ToolUse    bool
	Embedding  bool
}

// ChatOptions carries per-call tuning the provider-neutral caller wants
// applied uniformly — the uniform surface named in spec §4.13.
type ChatOptions struct {
	Tools       []Tool
	Temperature float64
}

// LLM is the uniform chat/stream/embed contract spec §4.13 requires. Two
// concrete providers are wired: a local-first one (Ollama, via its
// native HTTP API) and a cloud one (Claude); the `/fallback`
// directive in a user message forces the cloud provider for that turn.
type LLM interface {
	Chat(ctx context.Context, systemPrompt string, messages []Message) (string, error)
	ChatWithTools(ctx context.Context, systemPrompt string, messages []Message, tools []Tool) (*ChatResponse, error)
	ChatStream(ctx context.Context, systemPrompt string, messages []Message, opts ChatOptions) (<-chan StreamToken, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Capabilities() Capabilities
	Provider() string
	Model() string
}
