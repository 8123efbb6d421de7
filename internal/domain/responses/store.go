package responses

import "context"

// Record is what the response store persists per response id.
type Record struct {
	Response   *Response `json:"response"`
	InputItems []Item    `json:"input_items"`
	CreatedAt  int64     `json:"created_at"`
}

// Sort orders for input item listing.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// ListInputItemsParams paginates a response's input items. After and
// Before are item ids and exclude their referents.
type ListInputItemsParams struct {
	Limit  int
	Order  string
	After  string
	Before string
}

// ItemPage is one page of input items.
type ItemPage struct {
	Data    []Item `json:"data"`
	FirstID string `json:"first_id,omitempty"`
	LastID  string `json:"last_id,omitempty"`
	HasMore bool   `json:"has_more"`
}

// Store persists response records. Delete is idempotent. Implementations
// serialize operations per response id.
type Store interface {
	Put(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	ListInputItems(ctx context.Context, id string, params ListInputItemsParams) (*ItemPage, error)
}
