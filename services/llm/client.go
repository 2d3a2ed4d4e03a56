package llm

import (
	"context"

	"github.com/AleutianAI/AleutianNetOps/services/assistant/datatypes"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// ChatClient is the optional multi-turn upgrade of LLMClient. Callers
// type-assert against it and fall back to Generate when the backend does
// not implement it.
type ChatClient interface {
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)
}

// StreamingClient is the optional streaming upgrade of LLMClient. Callers
// type-assert against it and fall back to a single Generate call when the
// backend does not implement it.
type StreamingClient interface {
	ChatStream(ctx context.Context, messages []datatypes.Message, params GenerationParams,
		callback StreamCallback) error
}
