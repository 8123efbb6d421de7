package vectorstore

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"openresponses.ai/gateway/internal/domain/llm"
)

// LLMRewriter asks a chat model to rewrite the caller's query into a form
// better suited for retrieval.
type LLMRewriter struct {
	provider llm.Provider
	target   llm.Target
}

// NewLLMRewriter creates a rewriter backed by the given upstream target.
func NewLLMRewriter(provider llm.Provider, target llm.Target) *LLMRewriter {
	return &LLMRewriter{provider: provider, target: target}
}

// Rewrite implements Rewriter. Quotes and surrounding whitespace in the
// model reply are stripped; an empty reply keeps the original query.
func (r *LLMRewriter) Rewrite(ctx context.Context, query string) (string, error) {
	resp, err := r.provider.CreateChatCompletion(ctx, r.target, openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "Rewrite the user's question as a concise search query. Reply with the query only."},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
	})
	if err != nil {
		return "", fmt.Errorf("rewrite completion: %w", err)
	}
	rewritten := strings.TrimSpace(resp.Choices[0].Message.Content)
	rewritten = strings.Trim(rewritten, `"`)
	if rewritten == "" {
		return query, nil
	}
	return rewritten, nil
}
