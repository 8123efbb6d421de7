package vectorstore

import "context"

// SemanticHit is one scored chunk from the semantic index.
type SemanticHit struct {
	Chunk Chunk
	Score float64
}

// LexicalHit is one scored chunk from the full-text index.
type LexicalHit struct {
	Chunk Chunk
	Score float64
}

// SemanticIndex is the pluggable vector search provider. Implementations:
// in-memory with JSON snapshots, and qdrant.
type SemanticIndex interface {
	// IndexFile replaces all prior chunks for the file id before the new
	// chunks become searchable.
	IndexFile(ctx context.Context, storeID, fileID string, chunks []Chunk) error
	// Search returns up to k hits across the given stores, scored by cosine
	// similarity normalized to [0,1], best first. The filter is evaluated
	// against each chunk's attributes.
	Search(ctx context.Context, storeIDs []string, query []float32, k int, filter *Filter) ([]SemanticHit, error)
	DeleteFile(ctx context.Context, storeID, fileID string) error
	DeleteStore(ctx context.Context, storeID string) error
	// FileMetadata returns the stored attributes for a file, if indexed.
	FileMetadata(ctx context.Context, storeID, fileID string) (map[string]any, bool)
}

// LexicalIndex is the keyword side of hybrid retrieval.
type LexicalIndex interface {
	IndexFile(storeID, fileID string, chunks []Chunk)
	Search(query string, k int, storeIDs []string) []LexicalHit
	DeleteFile(storeID, fileID string)
	DeleteStore(storeID string)
}

// Repository persists store and store-file metadata. Operations on a single
// store id are serialized by the implementation.
type Repository interface {
	CreateStore(ctx context.Context, store *VectorStore) error
	GetStore(ctx context.Context, id string) (*VectorStore, error)
	UpdateStore(ctx context.Context, store *VectorStore) error
	DeleteStore(ctx context.Context, id string) error
	ListStores(ctx context.Context) ([]*VectorStore, error)

	CreateFile(ctx context.Context, f *StoreFile) error
	GetFile(ctx context.Context, storeID, fileID string) (*StoreFile, error)
	UpdateFile(ctx context.Context, f *StoreFile) error
	DeleteFile(ctx context.Context, storeID, fileID string) error
	ListFiles(ctx context.Context, storeID string) ([]*StoreFile, error)
}

// Embedder turns texts into embedding vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker windows file text into chunk strings.
type Chunker interface {
	Chunk(text string, strategy *ChunkingStrategy) ([]string, error)
}
