// Package vectorindex provides the concrete indexing backends behind the
// vector store subsystem: a token window chunker, an in-memory semantic
// index persisted as JSON snapshots, a lexical inverted index, and a
// qdrant-backed semantic index.
package vectorindex

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"openresponses.ai/gateway/internal/domain/vectorstore"
)

const (
	defaultChunkSizeTokens    = 1000
	defaultChunkOverlapTokens = 200

	// cl100k_base keeps chunk boundaries deterministic for given input text.
	chunkEncoding = "cl100k_base"
)

// TokenChunker splits text into overlapping token windows.
type TokenChunker struct {
	encoder *tiktoken.Tiktoken
}

// NewTokenChunker loads the BPE table used for chunk sizing.
func NewTokenChunker() (*TokenChunker, error) {
	encoder, err := tiktoken.GetEncoding(chunkEncoding)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", chunkEncoding, err)
	}
	return &TokenChunker{encoder: encoder}, nil
}

// Chunk windows text by the given strategy. A nil or auto strategy uses the
// default 1000 token window with 200 token overlap.
func (c *TokenChunker) Chunk(text string, strategy *vectorstore.ChunkingStrategy) ([]string, error) {
	size, overlap, err := resolveWindow(strategy)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	tokens := c.encoder.Encode(text, nil, nil)
	if len(tokens) <= size {
		return []string{text}, nil
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(tokens); start += step {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, c.encoder.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}

// CountTokens returns the token count of text under the chunk encoding.
func (c *TokenChunker) CountTokens(text string) int {
	return len(c.encoder.Encode(text, nil, nil))
}

func resolveWindow(strategy *vectorstore.ChunkingStrategy) (size, overlap int, err error) {
	size, overlap = defaultChunkSizeTokens, defaultChunkOverlapTokens
	if strategy == nil || strategy.Type == "" || strategy.Type == vectorstore.ChunkingAuto {
		return size, overlap, nil
	}
	if strategy.Type != vectorstore.ChunkingStatic {
		return 0, 0, vectorstore.ErrInvalidChunkingStrategy(fmt.Sprintf("unknown type %q", strategy.Type))
	}
	if strategy.Static == nil {
		return 0, 0, vectorstore.ErrInvalidChunkingStrategy("static strategy requires static parameters")
	}
	size = strategy.Static.MaxChunkSizeTokens
	overlap = strategy.Static.ChunkOverlapTokens
	if size <= 0 {
		return 0, 0, vectorstore.ErrInvalidChunkingStrategy("max_chunk_size_tokens must be positive")
	}
	if overlap < 0 || overlap >= size {
		return 0, 0, vectorstore.ErrInvalidChunkingStrategy("chunk_overlap_tokens must be in [0, max_chunk_size_tokens)")
	}
	return size, overlap, nil
}

var _ vectorstore.Chunker = (*TokenChunker)(nil)
