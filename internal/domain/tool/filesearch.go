package tool

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"openresponses.ai/gateway/internal/domain/vectorstore"
)

// VectorSearcher is the retrieval capability file_search runs on.
type VectorSearcher interface {
	Search(ctx context.Context, query vectorstore.SearchQuery) (*vectorstore.SearchResponse, error)
}

// FileSearchConfig is the request-scoped configuration carried on the
// file_search tool definition.
type FileSearchConfig struct {
	VectorStoreIDs []string                    `json:"vector_store_ids"`
	MaxNumResults  int                         `json:"max_num_results,omitempty"`
	Filters        *vectorstore.Filter         `json:"filters,omitempty"`
	RankingOptions *vectorstore.RankingOptions `json:"ranking_options,omitempty"`
}

// FileSearch searches the configured vector stores for chunks relevant to
// the model's query. One instance is built per request from the request's
// tool definition.
type FileSearch struct {
	searcher VectorSearcher
	config   FileSearchConfig
}

// NewFileSearch builds the request-scoped file_search tool.
func NewFileSearch(searcher VectorSearcher, config FileSearchConfig) *FileSearch {
	return &FileSearch{searcher: searcher, config: config}
}

func (f *FileSearch) Name() string { return TypeFileSearch }

var fileSearchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"description": "Search query over the attached knowledge files."
		}
	},
	"required": ["query"]
}`)

func (f *FileSearch) Definition() openai.Tool {
	return FunctionDef(TypeFileSearch, "Search the attached knowledge files and return the most relevant passages.", fileSearchSchema)
}

type fileSearchArgs struct {
	Query string `json:"query"`
}

// FileSearchOutput is the JSON payload returned from a file_search or
// agentic_search call. The annotations inside each result feed the final
// message's citation back-fill.
type FileSearchOutput struct {
	SearchQuery string                     `json:"search_query"`
	Data        []vectorstore.SearchResult `json:"data"`
}

func (f *FileSearch) Execute(ctx context.Context, arguments string, exec *ExecContext) (string, error) {
	var args fileSearchArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("file_search arguments: %w", err)
	}
	if args.Query == "" {
		return "", fmt.Errorf("file_search requires a query")
	}

	exec.EmitEvent("file_search.searching", map[string]any{"query": args.Query})
	resp, err := f.searcher.Search(ctx, vectorstore.SearchQuery{
		Query:          args.Query,
		VectorStoreIDs: f.config.VectorStoreIDs,
		MaxNumResults:  f.config.MaxNumResults,
		Filters:        f.config.Filters,
		RankingOptions: f.config.RankingOptions,
	})
	if err != nil {
		return "", err
	}

	output := FileSearchOutput{SearchQuery: resp.SearchQuery, Data: resp.Data}
	if output.Data == nil {
		output.Data = []vectorstore.SearchResult{}
	}
	encoded, err := json.Marshal(output)
	if err != nil {
		return "", fmt.Errorf("encode file_search output: %w", err)
	}
	return string(encoded), nil
}
