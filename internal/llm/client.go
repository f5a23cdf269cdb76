package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("llm returned no content")

type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
