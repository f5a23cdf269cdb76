package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/agenthands/storyline/internal/llm"
)

var (
	ErrProviderUnavailable = errors.New("enrichment provider unavailable")
	ErrMalformedOutput     = errors.New("malformed polish output")
)

// SourceContext is the evidence a provider may draw on while rewriting one
// component. It never leaves the call.
type SourceContext struct {
	ClusterID  string
	Framework  string
	Section    string
	Activities []model.Activity
}

// Provider rewrites one component's text.
type Provider interface {
	Polish(ctx context.Context, text string, src SourceContext) (string, error)
}

// DefaultPrompt takes section, framework, draft text and source list.
const DefaultPrompt = `You are editing one section of a %[2]s career story.
Rewrite the "%[1]s" section below as fluent first-person prose. Keep every
fact, do not invent numbers, names or outcomes, and keep it under 80 words.

Draft:
%[3]s

Source activities:
%[4]s
Respond with JSON: {"text": "<rewritten section>"}`

type polished struct {
	Text string `json:"text"`
}

// LLMProvider polishes text through any LLMClient.
type LLMProvider struct {
	LLM    llm.LLMClient
	Prompt string
}

func NewLLMProvider(client llm.LLMClient, prompt string) *LLMProvider {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	return &LLMProvider{LLM: client, Prompt: prompt}
}

func (p *LLMProvider) Polish(ctx context.Context, text string, src SourceContext) (string, error) {
	if p.LLM == nil {
		return "", ErrProviderUnavailable
	}

	var sources strings.Builder
	for _, a := range src.Activities {
		fmt.Fprintf(&sources, "- [%s] %s\n", a.Tool, a.Title)
	}
	prompt := fmt.Sprintf(p.Prompt, src.Section, src.Framework, text, sources.String())

	response, err := p.LLM.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to polish %s: %w", src.Section, err)
	}

	result, err := common.ParseJSON[polished](response)
	if err == nil {
		if out := strings.TrimSpace(result.Text); out != "" {
			return out, nil
		}
		return "", fmt.Errorf("%w: empty text field", ErrMalformedOutput)
	}
	if strings.ContainsAny(response, "{}") {
		return "", fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	// Plain prose is accepted as is.
	if out := strings.TrimSpace(response); out != "" {
		return out, nil
	}
	return "", fmt.Errorf("%w: empty response", ErrMalformedOutput)
}
