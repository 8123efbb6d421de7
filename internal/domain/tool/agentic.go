package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"openresponses.ai/gateway/internal/domain/vectorstore"
)

const (
	agenticMaxIterations  = 5
	agenticPerQueryLimit  = 5
	agenticSnippetPreview = 300
)

// AgenticSearchState tracks one agentic search across its refinement
// iterations.
type AgenticSearchState struct {
	Iteration int                        `json:"iteration"`
	Queries   []string                   `json:"queries"`
	Results   []vectorstore.SearchResult `json:"results"`
	Exhausted bool                       `json:"exhausted"`
}

// AgenticSearch runs iterative retrieval: search, let the model inspect
// the passages, and either refine the query or stop. Results across
// iterations are deduplicated by file id and text.
type AgenticSearch struct {
	searcher VectorSearcher
	config   FileSearchConfig
}

// NewAgenticSearch builds the request-scoped agentic_search tool.
func NewAgenticSearch(searcher VectorSearcher, config FileSearchConfig) *AgenticSearch {
	return &AgenticSearch{searcher: searcher, config: config}
}

func (a *AgenticSearch) Name() string { return TypeAgenticSearch }

var agenticSearchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"description": "Initial search query; the tool refines it over multiple passes."
		}
	},
	"required": ["query"]
}`)

func (a *AgenticSearch) Definition() openai.Tool {
	return FunctionDef(TypeAgenticSearch, "Iteratively search the attached knowledge files, refining the query until the answer is covered.", agenticSearchSchema)
}

func (a *AgenticSearch) Execute(ctx context.Context, arguments string, exec *ExecContext) (string, error) {
	var args fileSearchArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("agentic_search arguments: %w", err)
	}
	if args.Query == "" {
		return "", fmt.Errorf("agentic_search requires a query")
	}

	state := &AgenticSearchState{Queries: []string{args.Query}}
	seen := make(map[string]bool)
	query := args.Query

	for state.Iteration = 0; state.Iteration < agenticMaxIterations; state.Iteration++ {
		exec.EmitEvent("agentic_search.iteration", map[string]any{
			"iteration": state.Iteration,
			"query":     query,
		})

		resp, err := a.searcher.Search(ctx, vectorstore.SearchQuery{
			Query:          query,
			VectorStoreIDs: a.config.VectorStoreIDs,
			MaxNumResults:  agenticPerQueryLimit,
			Filters:        a.config.Filters,
			RankingOptions: a.config.RankingOptions,
		})
		if err != nil {
			return "", err
		}
		for _, result := range resp.Data {
			text := ""
			if len(result.Content) > 0 {
				text = result.Content[0].Text
			}
			key := result.FileID + "\x00" + text
			if seen[key] {
				continue
			}
			seen[key] = true
			state.Results = append(state.Results, result)
		}

		next, err := a.refine(ctx, exec, args.Query, state)
		if err != nil || next == "" {
			state.Exhausted = next == ""
			break
		}
		query = next
		state.Queries = append(state.Queries, next)
	}

	output := FileSearchOutput{SearchQuery: args.Query, Data: state.Results}
	if output.Data == nil {
		output.Data = []vectorstore.SearchResult{}
	}
	encoded, err := json.Marshal(output)
	if err != nil {
		return "", fmt.Errorf("encode agentic_search output: %w", err)
	}
	return string(encoded), nil
}

// refine asks the model whether the collected passages answer the original
// question. It replies DONE or a refined query. Without a provider the
// loop stops after the first pass.
func (a *AgenticSearch) refine(ctx context.Context, exec *ExecContext, question string, state *AgenticSearchState) (string, error) {
	if exec == nil || exec.Provider == nil {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nPassages found so far:\n", question)
	for _, result := range state.Results {
		snippet := ""
		if len(result.Content) > 0 {
			snippet = result.Content[0].Text
		}
		if len(snippet) > agenticSnippetPreview {
			snippet = snippet[:agenticSnippetPreview]
		}
		fmt.Fprintf(&b, "- (%s) %s\n", result.Filename, snippet)
	}
	b.WriteString("\nIf these passages answer the question, reply DONE. Otherwise reply with one refined search query.")

	resp, err := exec.Provider.CreateChatCompletion(ctx, exec.Target, openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You steer an iterative document search. Reply with DONE or a single refined query, nothing else."},
			{Role: openai.ChatMessageRoleUser, Content: b.String()},
		},
	})
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" || strings.EqualFold(reply, "DONE") {
		return "", nil
	}
	return strings.Trim(reply, `"`), nil
}
