package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"openresponses.ai/gateway/internal/domain/apierror"
)

func TestLocalSaveStatContent(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local: %v", err)
	}

	record, err := store.Save(ctx, "notes.txt", "assistants", strings.NewReader("alpha beta"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(record.ID, "file-") {
		t.Fatalf("unexpected id %q", record.ID)
	}
	if record.Bytes != int64(len("alpha beta")) {
		t.Fatalf("unexpected size %d", record.Bytes)
	}

	stat, err := store.Stat(ctx, record.ID)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if stat.Filename != "notes.txt" || stat.Purpose != "assistants" {
		t.Fatalf("unexpected metadata: %+v", stat)
	}

	reader, err := store.Content(ctx, record.ID)
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	defer reader.Close()
	content, _ := io.ReadAll(reader)
	if string(content) != "alpha beta" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestLocalDeleteAndNotFound(t *testing.T) {
	ctx := context.Background()
	store, _ := NewLocal(t.TempDir())

	record, _ := store.Save(ctx, "a.txt", "assistants", strings.NewReader("x"))
	if err := store.Delete(ctx, record.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err := store.Stat(ctx, record.ID)
	if apierror.KindOf(err) != apierror.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
	if err := store.Delete(ctx, record.ID); apierror.KindOf(err) != apierror.KindNotFound {
		t.Fatalf("second delete should be not_found, got %v", err)
	}
}

func TestLocalList(t *testing.T) {
	ctx := context.Background()
	store, _ := NewLocal(t.TempDir())

	_, _ = store.Save(ctx, "a.txt", "assistants", strings.NewReader("x"))
	_, _ = store.Save(ctx, "b.txt", "assistants", strings.NewReader("y"))

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
}
