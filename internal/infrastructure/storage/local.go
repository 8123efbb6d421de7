// Package storage implements uploaded file storage on the local filesystem.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/file"
)

// Local stores file content and a JSON metadata sidecar per file under a
// base directory.
type Local struct {
	dir string
	mu  sync.RWMutex
}

// NewLocal creates the storage directory if needed and returns the store.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create file storage dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

// NewFileID mints a file- prefixed public id.
func NewFileID() string {
	return "file-" + strings.ToLower(ulid.Make().String())
}

func (l *Local) contentPath(id string) string {
	return filepath.Join(l.dir, id)
}

func (l *Local) metaPath(id string) string {
	return filepath.Join(l.dir, id+".meta.json")
}

// Save writes the content and its metadata record, detecting the mime type
// from the leading bytes.
func (l *Local) Save(ctx context.Context, filename, purpose string, content io.Reader) (*file.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := NewFileID()
	out, err := os.Create(l.contentPath(id))
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	size, err := io.Copy(out, content)
	closeErr := out.Close()
	if err != nil {
		os.Remove(l.contentPath(id))
		return nil, fmt.Errorf("write file: %w", err)
	}
	if closeErr != nil {
		os.Remove(l.contentPath(id))
		return nil, fmt.Errorf("close file: %w", closeErr)
	}

	mime, err := mimetype.DetectFile(l.contentPath(id))
	mimeStr := "application/octet-stream"
	if err == nil {
		mimeStr = mime.String()
	}

	record := &file.File{
		ID:        id,
		Object:    "file",
		Filename:  filename,
		Purpose:   purpose,
		Bytes:     size,
		MimeType:  mimeStr,
		CreatedAt: time.Now().Unix(),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		os.Remove(l.contentPath(id))
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(l.metaPath(id), payload, 0o644); err != nil {
		os.Remove(l.contentPath(id))
		return nil, fmt.Errorf("write metadata: %w", err)
	}
	return record, nil
}

// Stat returns the metadata record for id.
func (l *Local) Stat(ctx context.Context, id string) (*file.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	payload, err := os.ReadFile(l.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierror.NotFound("file %s not found", id).WithCode("file_not_found")
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var record file.File
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &record, nil
}

// Content opens the stored content for reading.
func (l *Local) Content(ctx context.Context, id string) (io.ReadCloser, error) {
	if _, err := l.Stat(ctx, id); err != nil {
		return nil, err
	}
	f, err := os.Open(l.contentPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierror.NotFound("file %s not found", id).WithCode("file_not_found")
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Delete removes the content and metadata. Deleting an absent id fails with
// not_found.
func (l *Local) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := os.Stat(l.metaPath(id)); os.IsNotExist(err) {
		return apierror.NotFound("file %s not found", id).WithCode("file_not_found")
	}
	if err := os.Remove(l.contentPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	if err := os.Remove(l.metaPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove metadata: %w", err)
	}
	return nil
}

// List returns all stored metadata records.
func (l *Local) List(ctx context.Context) ([]*file.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read storage dir: %w", err)
	}
	var records []*file.File
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta.json") {
			continue
		}
		payload, err := os.ReadFile(filepath.Join(l.dir, entry.Name()))
		if err != nil {
			continue
		}
		var record file.File
		if err := json.Unmarshal(payload, &record); err != nil {
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

var _ file.Storage = (*Local)(nil)
