// Package vectorstorerepo persists vector store and store-file metadata.
package vectorstorerepo

import (
	"context"
	"sort"
	"sync"

	"openresponses.ai/gateway/internal/domain/vectorstore"
)

// Memory is the in-memory metadata repository. A single store id is
// serialized by the repository mutex; copies are returned so callers never
// share mutable state.
type Memory struct {
	mu     sync.RWMutex
	stores map[string]*vectorstore.VectorStore
	files  map[string]map[string]*vectorstore.StoreFile // store id -> file id -> file
}

// NewMemory creates an empty repository.
func NewMemory() *Memory {
	return &Memory{
		stores: make(map[string]*vectorstore.VectorStore),
		files:  make(map[string]map[string]*vectorstore.StoreFile),
	}
}

func copyStore(s *vectorstore.VectorStore) *vectorstore.VectorStore {
	dup := *s
	if s.ExpiresAfter != nil {
		ea := *s.ExpiresAfter
		dup.ExpiresAfter = &ea
	}
	if s.ExpiresAt != nil {
		at := *s.ExpiresAt
		dup.ExpiresAt = &at
	}
	if s.Metadata != nil {
		dup.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			dup.Metadata[k] = v
		}
	}
	return &dup
}

func copyFile(f *vectorstore.StoreFile) *vectorstore.StoreFile {
	dup := *f
	if f.LastError != nil {
		le := *f.LastError
		dup.LastError = &le
	}
	if f.ChunkingStrategy != nil {
		cs := *f.ChunkingStrategy
		if f.ChunkingStrategy.Static != nil {
			st := *f.ChunkingStrategy.Static
			cs.Static = &st
		}
		dup.ChunkingStrategy = &cs
	}
	if f.Attributes != nil {
		dup.Attributes = make(map[string]any, len(f.Attributes))
		for k, v := range f.Attributes {
			dup.Attributes[k] = v
		}
	}
	return &dup
}

func (m *Memory) CreateStore(_ context.Context, store *vectorstore.VectorStore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[store.ID] = copyStore(store)
	m.files[store.ID] = make(map[string]*vectorstore.StoreFile)
	return nil
}

func (m *Memory) GetStore(_ context.Context, id string) (*vectorstore.VectorStore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	store, ok := m.stores[id]
	if !ok {
		return nil, vectorstore.ErrStoreNotFound(id)
	}
	return copyStore(store), nil
}

func (m *Memory) UpdateStore(_ context.Context, store *vectorstore.VectorStore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[store.ID]; !ok {
		return vectorstore.ErrStoreNotFound(store.ID)
	}
	m.stores[store.ID] = copyStore(store)
	return nil
}

func (m *Memory) DeleteStore(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[id]; !ok {
		return vectorstore.ErrStoreNotFound(id)
	}
	delete(m.stores, id)
	delete(m.files, id)
	return nil
}

func (m *Memory) ListStores(_ context.Context) ([]*vectorstore.VectorStore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stores := make([]*vectorstore.VectorStore, 0, len(m.stores))
	for _, store := range m.stores {
		stores = append(stores, copyStore(store))
	}
	sort.Slice(stores, func(i, j int) bool {
		if stores[i].CreatedAt != stores[j].CreatedAt {
			return stores[i].CreatedAt > stores[j].CreatedAt
		}
		return stores[i].ID < stores[j].ID
	})
	return stores, nil
}

func (m *Memory) CreateFile(_ context.Context, f *vectorstore.StoreFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.files[f.VectorStoreID]
	if !ok {
		return vectorstore.ErrStoreNotFound(f.VectorStoreID)
	}
	files[f.ID] = copyFile(f)
	return nil
}

func (m *Memory) GetFile(_ context.Context, storeID, fileID string) (*vectorstore.StoreFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	files, ok := m.files[storeID]
	if !ok {
		return nil, vectorstore.ErrStoreNotFound(storeID)
	}
	f, ok := files[fileID]
	if !ok {
		return nil, vectorstore.ErrStoreFileNotFound(storeID, fileID)
	}
	return copyFile(f), nil
}

func (m *Memory) UpdateFile(_ context.Context, f *vectorstore.StoreFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.files[f.VectorStoreID]
	if !ok {
		return vectorstore.ErrStoreNotFound(f.VectorStoreID)
	}
	if _, ok := files[f.ID]; !ok {
		return vectorstore.ErrStoreFileNotFound(f.VectorStoreID, f.ID)
	}
	files[f.ID] = copyFile(f)
	return nil
}

func (m *Memory) DeleteFile(_ context.Context, storeID, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.files[storeID]
	if !ok {
		return vectorstore.ErrStoreNotFound(storeID)
	}
	if _, ok := files[fileID]; !ok {
		return vectorstore.ErrStoreFileNotFound(storeID, fileID)
	}
	delete(files, fileID)
	return nil
}

func (m *Memory) ListFiles(_ context.Context, storeID string) ([]*vectorstore.StoreFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	files, ok := m.files[storeID]
	if !ok {
		return nil, vectorstore.ErrStoreNotFound(storeID)
	}
	out := make([]*vectorstore.StoreFile, 0, len(files))
	for _, f := range files {
		out = append(out, copyFile(f))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

var _ vectorstore.Repository = (*Memory)(nil)
