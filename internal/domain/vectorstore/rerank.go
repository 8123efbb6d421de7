package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"openresponses.ai/gateway/internal/domain/llm"
)

// Reranker reorders candidates and assigns replacement scores. The caller
// re-sorts descending by the returned scores.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate, k int) ([]Candidate, error)
}

// NoopReranker keeps the incoming order, truncated to k.
type NoopReranker struct{}

// Rerank implements Reranker.
func (NoopReranker) Rerank(_ context.Context, _ string, candidates []Candidate, k int) ([]Candidate, error) {
	return Truncate(candidates, k), nil
}

// Positional rescoring for LLM rerank output.
const (
	rerankTopScore  = 1.0
	rerankScoreStep = 0.05
	rerankMinScore  = 0.1
	rerankSnippet   = 500
)

// LLMReranker asks a chat model to order candidate chunks by relevance.
type LLMReranker struct {
	provider llm.Provider
	target   llm.Target
}

// NewLLMReranker creates a reranker backed by the given upstream target.
func NewLLMReranker(provider llm.Provider, target llm.Target) *LLMReranker {
	return &LLMReranker{provider: provider, target: target}
}

// Rerank prompts the model with numbered snippets and expects a JSON array
// of chunk ids, most relevant first. Ids the model omits keep their original
// relative order after the ranked ones. On a malformed reply the incoming
// order is kept.
func (r *LLMReranker) Rerank(ctx context.Context, query string, candidates []Candidate, k int) ([]Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	prompt := buildRerankPrompt(query, candidates)
	resp, err := r.provider.CreateChatCompletion(ctx, r.target, openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You rank document chunks by relevance to a query. Reply with a JSON array of chunk ids only, most relevant first."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("rerank completion: %w", err)
	}

	order, ok := parseRankedIDs(resp.Choices[0].Message.Content)
	if !ok {
		return Truncate(candidates, k), nil
	}

	position := make(map[string]int, len(order))
	for i, id := range order {
		if _, seen := position[id]; !seen {
			position[id] = i
		}
	}

	reranked := make([]Candidate, len(candidates))
	copy(reranked, candidates)
	for i := range reranked {
		if pos, ok := position[reranked[i].Chunk.ChunkID]; ok {
			score := rerankTopScore - rerankScoreStep*float64(pos)
			if score < rerankMinScore {
				score = rerankMinScore
			}
			reranked[i].Score = score
		} else {
			reranked[i].Score = rerankMinScore
		}
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})
	return Truncate(reranked, k), nil
}

func buildRerankPrompt(query string, candidates []Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nChunks:\n", query)
	for _, c := range candidates {
		snippet := c.Chunk.Text
		if len(snippet) > rerankSnippet {
			snippet = snippet[:rerankSnippet]
		}
		fmt.Fprintf(&b, "[%s] %s\n", c.Chunk.ChunkID, snippet)
	}
	b.WriteString("\nReturn a JSON array of the chunk ids in relevance order.")
	return b.String()
}

func parseRankedIDs(content string) ([]string, bool) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, false
	}
	var ids []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &ids); err != nil {
		return nil, false
	}
	return ids, len(ids) > 0
}
