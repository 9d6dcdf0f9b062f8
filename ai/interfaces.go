package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatRole identifies the author of a ChatMessage.
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one entry of a generation request.
type ChatMessage struct {
	Role    ChatRole
	Content string
}

// GenerateOptions overrides provider defaults for a single completion.
// Zero values keep the provider's configured setting.
type GenerateOptions struct {
	Model     string
	MaxTokens int
}

// GenerateOption is a functional option for a single completion.
type GenerateOption func(*GenerateOptions)

// WithModel selects the model for one completion.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithMaxTokens caps the completion length for one call.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// ApplyGenerateOptions folds opts into a GenerateOptions value.
func ApplyGenerateOptions(opts ...GenerateOption) GenerateOptions {
	var o GenerateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Generator produces chat completions.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Complete sends messages in order and returns the text of the first
	// completion. Failures are reported as *ProviderError, and an empty
	// completion as ErrEmptyCompletion.
	Complete(ctx context.Context, messages []ChatMessage, opts ...GenerateOption) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Generator returns the chat completion service.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
