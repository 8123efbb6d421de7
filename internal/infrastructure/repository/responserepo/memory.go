// Package responserepo persists response records for threading and replay.
package responserepo

import (
	"context"
	"sync"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/responses"
)

// Memory is the in-memory response store. A single response id is
// serialized by its own mutex so concurrent readers of unrelated ids never
// contend.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*responses.Record
	locks   map[string]*sync.Mutex
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*responses.Record),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (m *Memory) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}

func (m *Memory) Put(_ context.Context, record *responses.Record) error {
	lock := m.lockFor(record.Response.ID)
	lock.Lock()
	defer lock.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.Response.ID] = record
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*responses.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, apierror.NotFound("response %s not found", id).WithCode("response_not_found")
	}
	return record, nil
}

// Delete removes the record and its input items. Deleting an absent id is
// a no-op.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	delete(m.locks, id)
	return nil
}

func (m *Memory) ListInputItems(ctx context.Context, id string, params responses.ListInputItemsParams) (*responses.ItemPage, error) {
	record, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return PageItems(record.InputItems, params)
}

// PageItems applies ordering and exclusive cursors over an item sequence.
// Shared with the database-backed store, which pages in memory after
// loading the jsonb payload.
func PageItems(items []responses.Item, params responses.ListInputItemsParams) (*responses.ItemPage, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		return nil, apierror.Validation("limit must be between 1 and 100")
	}
	order := params.Order
	if order == "" {
		order = responses.OrderAsc
	}
	if order != responses.OrderAsc && order != responses.OrderDesc {
		return nil, apierror.Validation("order must be asc or desc")
	}

	ordered := make([]responses.Item, len(items))
	copy(ordered, items)
	if order == responses.OrderDesc {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}

	start := 0
	if params.After != "" {
		for i, item := range ordered {
			if item.ID == params.After {
				start = i + 1
				break
			}
		}
	}
	end := len(ordered)
	if params.Before != "" {
		for i, item := range ordered {
			if item.ID == params.Before {
				end = i
				break
			}
		}
	}
	if start > end {
		start = end
	}

	window := ordered[start:end]
	if len(window) > limit {
		window = window[:limit]
	}
	// More items exist in the direction of the sort beyond this window.
	hasMore := start+len(window) < len(ordered)

	page := &responses.ItemPage{Data: window, HasMore: hasMore}
	if len(window) > 0 {
		page.FirstID = window[0].ID
		page.LastID = window[len(window)-1].ID
	}
	return page, nil
}

var _ responses.Store = (*Memory)(nil)
