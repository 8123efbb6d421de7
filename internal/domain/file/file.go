// Package file defines uploaded file records and the storage contract.
package file

import (
	"context"
	"io"
)

// File is an uploaded file's metadata record.
type File struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
	Bytes     int64  `json:"bytes"`
	MimeType  string `json:"-"`
	CreatedAt int64  `json:"created_at"`
}

// Storage persists uploaded files and serves their content.
type Storage interface {
	Save(ctx context.Context, filename, purpose string, content io.Reader) (*File, error)
	Stat(ctx context.Context, id string) (*File, error)
	Content(ctx context.Context, id string) (io.ReadCloser, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*File, error)
}
