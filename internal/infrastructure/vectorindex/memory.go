package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"openresponses.ai/gateway/internal/domain/vectorstore"
)

const (
	lockRetries      = 5
	lockInitialDelay = 25 * time.Millisecond
)

type memStore struct {
	dimension int
	files     map[string][]vectorstore.Chunk // file id -> chunks
	attrs     map[string]map[string]any      // file id -> attributes at index time
}

// MemoryIndex is the in-memory semantic index. When constructed with a data
// directory it persists one JSON snapshot per indexed file and reloads them
// on startup.
type MemoryIndex struct {
	mu     sync.RWMutex
	dir    string
	stores map[string]*memStore
	logger zerolog.Logger
}

// NewMemoryIndex creates the index and loads any snapshots under dir.
// An empty dir disables persistence.
func NewMemoryIndex(dir string, logger zerolog.Logger) (*MemoryIndex, error) {
	idx := &MemoryIndex{
		dir:    dir,
		stores: make(map[string]*memStore),
		logger: logger.With().Str("component", "memory-vector-index").Logger(),
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create vector data dir: %w", err)
		}
		if err := idx.loadSnapshots(); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

type fileSnapshot struct {
	StoreID    string              `json:"vector_store_id"`
	FileID     string              `json:"file_id"`
	Attributes map[string]any      `json:"attributes,omitempty"`
	Chunks     []vectorstore.Chunk `json:"chunks"`
}

// IndexFile replaces all prior chunks for the file before the new chunks
// become searchable, then persists a snapshot.
func (idx *MemoryIndex) IndexFile(ctx context.Context, storeID, fileID string, chunks []vectorstore.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	store, ok := idx.stores[storeID]
	if !ok {
		store = &memStore{files: make(map[string][]vectorstore.Chunk), attrs: make(map[string]map[string]any)}
		idx.stores[storeID] = store
	}
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		if store.dimension == 0 {
			store.dimension = len(chunk.Embedding)
		} else if store.dimension != len(chunk.Embedding) {
			idx.mu.Unlock()
			return vectorstore.ErrEmbeddingDimensionMismatch(store.dimension, len(chunk.Embedding))
		}
	}
	store.files[fileID] = chunks
	var attrs map[string]any
	if len(chunks) > 0 {
		attrs = chunks[0].Attributes
	}
	store.attrs[fileID] = attrs
	idx.mu.Unlock()

	if idx.dir == "" {
		return nil
	}
	return idx.writeSnapshot(fileSnapshot{StoreID: storeID, FileID: fileID, Attributes: attrs, Chunks: chunks})
}

// Search scores every chunk in the given stores by cosine similarity
// normalized to [0,1] and returns the top k passing the filter.
func (idx *MemoryIndex) Search(ctx context.Context, storeIDs []string, query []float32, k int, filter *vectorstore.Filter) ([]vectorstore.SemanticHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	targets := storeIDs
	if len(targets) == 0 {
		targets = make([]string, 0, len(idx.stores))
		for id := range idx.stores {
			targets = append(targets, id)
		}
	}

	var hits []vectorstore.SemanticHit
	for _, storeID := range targets {
		store, ok := idx.stores[storeID]
		if !ok {
			continue
		}
		if store.dimension != 0 && store.dimension != len(query) {
			return nil, vectorstore.ErrEmbeddingDimensionMismatch(store.dimension, len(query))
		}
		for _, chunks := range store.files {
			for _, chunk := range chunks {
				if len(chunk.Embedding) == 0 {
					continue
				}
				if !filter.Matches(attributeView(chunk)) {
					continue
				}
				score := normalizedCosine(query, chunk.Embedding)
				hits = append(hits, vectorstore.SemanticHit{Chunk: chunk, Score: score})
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.ChunkID < hits[j].Chunk.ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteFile removes the file's chunks and its snapshot.
func (idx *MemoryIndex) DeleteFile(ctx context.Context, storeID, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	if store, ok := idx.stores[storeID]; ok {
		delete(store.files, fileID)
		delete(store.attrs, fileID)
	}
	idx.mu.Unlock()

	if idx.dir == "" {
		return nil
	}
	path := idx.snapshotPath(storeID, fileID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// DeleteStore removes every file of the store and its snapshot directory.
func (idx *MemoryIndex) DeleteStore(ctx context.Context, storeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	delete(idx.stores, storeID)
	idx.mu.Unlock()

	if idx.dir == "" {
		return nil
	}
	if err := os.RemoveAll(filepath.Join(idx.dir, storeID)); err != nil {
		return fmt.Errorf("remove store dir: %w", err)
	}
	return nil
}

// FileMetadata returns the attributes the file was indexed with.
func (idx *MemoryIndex) FileMetadata(ctx context.Context, storeID, fileID string) (map[string]any, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	store, ok := idx.stores[storeID]
	if !ok {
		return nil, false
	}
	attrs, ok := store.attrs[fileID]
	return attrs, ok
}

func (idx *MemoryIndex) snapshotPath(storeID, fileID string) string {
	return filepath.Join(idx.dir, storeID, fileID+".json")
}

// writeSnapshot writes the per-file JSON under an exclusive lock file,
// retrying with exponential backoff while another writer holds the lock.
func (idx *MemoryIndex) writeSnapshot(snapshot fileSnapshot) error {
	storeDir := filepath.Join(idx.dir, snapshot.StoreID)
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	path := idx.snapshotPath(snapshot.StoreID, snapshot.FileID)
	lockPath := path + ".lock"

	unlock, err := acquireLock(lockPath)
	if err != nil {
		return err
	}
	defer unlock()

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

func acquireLock(lockPath string) (func(), error) {
	delay := lockInitialDelay
	for attempt := 0; ; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire snapshot lock: %w", err)
		}
		if attempt == lockRetries {
			return nil, fmt.Errorf("acquire snapshot lock %s: contended after %d attempts", lockPath, lockRetries)
		}
		time.Sleep(delay)
		delay *= 2
	}
}

func (idx *MemoryIndex) loadSnapshots() error {
	entries, err := os.ReadDir(idx.dir)
	if err != nil {
		return fmt.Errorf("read vector data dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		storeID := entry.Name()
		storeDir := filepath.Join(idx.dir, storeID)
		files, err := os.ReadDir(storeDir)
		if err != nil {
			return fmt.Errorf("read store dir %s: %w", storeID, err)
		}
		for _, file := range files {
			if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
				continue
			}
			payload, err := os.ReadFile(filepath.Join(storeDir, file.Name()))
			if err != nil {
				return fmt.Errorf("read snapshot %s: %w", file.Name(), err)
			}
			var snapshot fileSnapshot
			if err := json.Unmarshal(payload, &snapshot); err != nil {
				idx.logger.Warn().Str("snapshot", file.Name()).Err(err).Msg("skipping malformed snapshot")
				continue
			}
			store, ok := idx.stores[storeID]
			if !ok {
				store = &memStore{files: make(map[string][]vectorstore.Chunk), attrs: make(map[string]map[string]any)}
				idx.stores[storeID] = store
			}
			store.files[snapshot.FileID] = snapshot.Chunks
			store.attrs[snapshot.FileID] = snapshot.Attributes
			for _, chunk := range snapshot.Chunks {
				if len(chunk.Embedding) > 0 && store.dimension == 0 {
					store.dimension = len(chunk.Embedding)
				}
			}
		}
	}
	return nil
}

// attributeView exposes chunk identity fields alongside its attributes so
// filters can address file_id and filename directly.
func attributeView(chunk vectorstore.Chunk) map[string]any {
	view := make(map[string]any, len(chunk.Attributes)+3)
	for k, v := range chunk.Attributes {
		view[k] = v
	}
	view["file_id"] = chunk.FileID
	view["filename"] = chunk.Filename
	view["chunk_index"] = chunk.ChunkIndex
	return view
}

func normalizedCosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}

var _ vectorstore.SemanticIndex = (*MemoryIndex)(nil)
