// Package vectorstore implements logical stores of chunked, indexed file
// content with lifecycles, expiration, attribute filters, and hybrid search.
package vectorstore

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusExpired    = "expired"
)

// File statuses.
const (
	FileStatusInProgress = "in_progress"
	FileStatusCompleted  = "completed"
	FileStatusFailed     = "failed"
	FileStatusCancelled  = "cancelled"
)

const secondsPerDay = 86400

// VectorStore groups indexed files under one searchable id.
type VectorStore struct {
	ID           string            `json:"id"`
	Object       string            `json:"object"`
	Name         string            `json:"name"`
	Status       string            `json:"status"`
	FileCounts   FileCounts        `json:"file_counts"`
	UsageBytes   int64             `json:"usage_bytes"`
	CreatedAt    int64             `json:"created_at"`
	LastActiveAt int64             `json:"last_active_at"`
	ExpiresAfter *ExpiresAfter     `json:"expires_after,omitempty"`
	ExpiresAt    *int64            `json:"expires_at,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// FileCounts tracks per-status file totals on a store.
type FileCounts struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// ExpiresAfter describes a store's expiration policy relative to an anchor.
type ExpiresAfter struct {
	Anchor string `json:"anchor"`
	Days   int    `json:"days"`
}

// NewStoreID mints a vs_ prefixed public id.
func NewStoreID() string {
	return "vs_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Touch updates last_active_at and recomputes expires_at from the policy.
func (s *VectorStore) Touch(now time.Time) {
	s.LastActiveAt = now.Unix()
	if s.ExpiresAfter != nil && s.ExpiresAfter.Days > 0 {
		expiresAt := s.LastActiveAt + int64(s.ExpiresAfter.Days)*secondsPerDay
		s.ExpiresAt = &expiresAt
	}
}

// Expired reports whether the store's expiration deadline passed.
func (s *VectorStore) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && *s.ExpiresAt < now.Unix()
}

// RecomputeStatus settles the store status from its file counts. Expired
// stores keep their status.
func (s *VectorStore) RecomputeStatus() {
	if s.Status == StatusExpired {
		return
	}
	if s.FileCounts.InProgress > 0 {
		s.Status = StatusInProgress
		return
	}
	s.Status = StatusCompleted
}

// StoreFile is a file attached to a vector store. Its id equals the
// gateway file id it was indexed from.
type StoreFile struct {
	ID               string            `json:"id"`
	Object           string            `json:"object"`
	VectorStoreID    string            `json:"vector_store_id"`
	Status           string            `json:"status"`
	LastError        *FileError        `json:"last_error,omitempty"`
	ChunkingStrategy *ChunkingStrategy `json:"chunking_strategy,omitempty"`
	Attributes       map[string]any    `json:"attributes,omitempty"`
	UsageBytes       int64             `json:"usage_bytes"`
	CreatedAt        int64             `json:"created_at"`
}

// FileError records why indexing a file failed.
type FileError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Chunking strategy types.
const (
	ChunkingAuto   = "auto"
	ChunkingStatic = "static"
)

// ChunkingStrategy selects how file text is windowed before embedding.
type ChunkingStrategy struct {
	Type   string          `json:"type"`
	Static *StaticChunking `json:"static,omitempty"`
}

// StaticChunking holds explicit token window parameters.
type StaticChunking struct {
	MaxChunkSizeTokens int `json:"max_chunk_size_tokens"`
	ChunkOverlapTokens int `json:"chunk_overlap_tokens"`
}

// Chunk is one indexed window of a file's text. A chunk exists only while
// its StoreFile exists.
type Chunk struct {
	ChunkID       string         `json:"chunk_id"`
	FileID        string         `json:"file_id"`
	VectorStoreID string         `json:"vector_store_id"`
	Filename      string         `json:"filename"`
	ChunkIndex    int            `json:"chunk_index"`
	Text          string         `json:"text"`
	Embedding     []float32      `json:"embedding,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

// Ranker names understood by RankingOptions.
const (
	RankerAuto    = "auto"
	RankerDefault = "default"
	RankerNone    = "none"
)

// RankingOptions tunes search scoring.
type RankingOptions struct {
	Ranker         string  `json:"ranker,omitempty"`
	ScoreThreshold float64 `json:"score_threshold,omitempty"`
}

// HybridEnabled reports whether lexical fusion applies for these options.
// Hybrid retrieval is used for every ranker except default and none.
func (r *RankingOptions) HybridEnabled() bool {
	if r == nil {
		return true
	}
	switch r.Ranker {
	case RankerDefault, RankerNone:
		return false
	default:
		return true
	}
}

// SearchQuery is one search invocation over one or more stores.
type SearchQuery struct {
	Query          string          `json:"query"`
	VectorStoreIDs []string        `json:"vector_store_ids,omitempty"`
	MaxNumResults  int             `json:"max_num_results,omitempty"`
	Filters        *Filter         `json:"filters,omitempty"`
	RankingOptions *RankingOptions `json:"ranking_options,omitempty"`
	RewriteQuery   bool            `json:"rewrite_query,omitempty"`
}

// SearchResult is one scored chunk returned to a caller.
type SearchResult struct {
	FileID      string         `json:"file_id"`
	Filename    string         `json:"filename"`
	Score       float64        `json:"score"`
	ChunkID     string         `json:"-"`
	ChunkIndex  int            `json:"-"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Content     []ContentPart  `json:"content"`
	Annotations []Annotation   `json:"annotations,omitempty"`
}

// ContentPart is a typed fragment of result content.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Annotation is a citation pointing back to a source chunk.
type Annotation struct {
	Type     string `json:"type"`
	Index    int    `json:"index"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
}

// SearchResponse is the envelope returned by the search operations.
type SearchResponse struct {
	Object      string         `json:"object"`
	SearchQuery string         `json:"search_query"`
	Data        []SearchResult `json:"data"`
	HasMore     bool           `json:"has_more"`
}
