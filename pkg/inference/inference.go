// Package inference declares the narrow interfaces through which the store
// consumes its external collaborators: the streaming completion provider and
// the model pricing lookup. Their implementations live outside this module.
package inference

import (
	"context"

	"github.com/spoolhq/spool/pkg/chat"
)

// Settings are the provider-agnostic sampling parameters for one request.
type Settings struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Usage reports token accounting for one completed request. CacheReadTokens
// feeds back into the context window engine's tokens-saved counter.
type Usage struct {
	PromptTokens        int `json:"prompt_tokens,omitempty"`
	CompletionTokens    int `json:"completion_tokens,omitempty"`
	CacheReadTokens     int `json:"cache_read_tokens,omitempty"`
	CacheCreationTokens int `json:"cache_creation_tokens,omitempty"`
}

// Provider streams a completion for the prepared context window. onChunk is
// invoked per content delta; onUsage, when non-nil, is invoked once with
// final token accounting.
type Provider interface {
	StreamCompletion(
		ctx context.Context,
		modelID string,
		messages []chat.ActiveMessage,
		systemPrompt string,
		settings Settings,
		onChunk func(delta string) error,
		stopSequences []string,
		onUsage func(Usage),
	) error
}

// Price is per-token pricing for a model, in USD per million tokens.
type Price struct {
	InputPerMTok     float64 `json:"input_per_mtok"`
	OutputPerMTok    float64 `json:"output_per_mtok"`
	CacheReadPerMTok float64 `json:"cache_read_per_mtok,omitempty"`
}

// Pricing resolves current pricing for a model.
type Pricing interface {
	ModelPricing(ctx context.Context, modelID string) (Price, error)
}
