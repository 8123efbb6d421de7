package vectorindex

import (
	"strings"
	"testing"

	"openresponses.ai/gateway/internal/domain/vectorstore"
)

func newTestChunker(t *testing.T) *TokenChunker {
	t.Helper()
	chunker, err := NewTokenChunker()
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}
	return chunker
}

func TestChunkShortTextSingleChunk(t *testing.T) {
	chunker := newTestChunker(t)
	chunks, err := chunker.Chunk("alpha beta", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != "alpha beta" {
		t.Fatalf("unexpected chunks: %#v", chunks)
	}
}

func TestChunkEmptyText(t *testing.T) {
	chunker := newTestChunker(t)
	chunks, err := chunker.Chunk("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestChunkStaticWindowsOverlap(t *testing.T) {
	chunker := newTestChunker(t)
	text := strings.Repeat("alpha beta gamma delta ", 50)
	strategy := &vectorstore.ChunkingStrategy{
		Type:   vectorstore.ChunkingStatic,
		Static: &vectorstore.StaticChunking{MaxChunkSizeTokens: 40, ChunkOverlapTokens: 10},
	}

	chunks, err := chunker.Chunk(text, strategy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if got := chunker.CountTokens(chunk); got > 40 {
			t.Fatalf("chunk %d has %d tokens, want <= 40", i, got)
		}
	}

	// Deterministic for identical input.
	again, err := chunker.Chunk(text, strategy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != len(chunks) {
		t.Fatalf("chunk count changed between runs: %d vs %d", len(chunks), len(again))
	}
	for i := range chunks {
		if chunks[i] != again[i] {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}

func TestChunkInvalidStrategies(t *testing.T) {
	chunker := newTestChunker(t)
	cases := []*vectorstore.ChunkingStrategy{
		{Type: "semantic"},
		{Type: vectorstore.ChunkingStatic},
		{Type: vectorstore.ChunkingStatic, Static: &vectorstore.StaticChunking{MaxChunkSizeTokens: 0}},
		{Type: vectorstore.ChunkingStatic, Static: &vectorstore.StaticChunking{MaxChunkSizeTokens: 100, ChunkOverlapTokens: 100}},
	}
	for i, strategy := range cases {
		if _, err := chunker.Chunk("text", strategy); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
