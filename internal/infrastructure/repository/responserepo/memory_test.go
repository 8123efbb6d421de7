package responserepo

import (
	"context"
	"fmt"
	"testing"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/responses"
)

func storedRecord(id string, itemCount int) *responses.Record {
	items := make([]responses.Item, itemCount)
	for i := range items {
		items[i] = responses.Item{
			ID:      fmt.Sprintf("item_%02d", i),
			Type:    responses.ItemTypeMessage,
			Role:    "user",
			Content: []responses.ContentPart{{Type: responses.ContentTypeInputText, Text: fmt.Sprintf("m%d", i)}},
		}
	}
	return &responses.Record{
		Response:   &responses.Response{ID: id, Object: "response", Status: responses.StatusCompleted},
		InputItems: items,
		CreatedAt:  100,
	}
}

func TestMemoryPutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	record := storedRecord("resp_1", 2)
	if err := store.Put(ctx, record); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, "resp_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Response.ID != "resp_1" || len(got.InputItems) != 2 {
		t.Fatalf("unexpected record %+v", got)
	}

	if err := store.Delete(ctx, "resp_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "resp_1"); err != nil {
		t.Fatalf("second delete should be idempotent: %v", err)
	}
	if _, err := store.Get(ctx, "resp_1"); apierror.KindOf(err) != apierror.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestListInputItemsPagination(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	_ = store.Put(ctx, storedRecord("resp_1", 5))

	page, err := store.ListInputItems(ctx, "resp_1", responses.ListInputItemsParams{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Data) != 2 || page.Data[0].ID != "item_00" {
		t.Fatalf("unexpected first page %+v", page.Data)
	}
	if !page.HasMore {
		t.Fatal("expected has_more on first page")
	}

	page, err = store.ListInputItems(ctx, "resp_1", responses.ListInputItemsParams{Limit: 10, After: page.LastID})
	if err != nil {
		t.Fatalf("list after: %v", err)
	}
	if len(page.Data) != 3 || page.Data[0].ID != "item_02" {
		t.Fatalf("after cursor should be exclusive, got %+v", page.Data)
	}
	if page.HasMore {
		t.Fatal("expected has_more=false on final page")
	}
}

func TestListInputItemsDescAndBefore(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	_ = store.Put(ctx, storedRecord("resp_1", 4))

	page, err := store.ListInputItems(ctx, "resp_1", responses.ListInputItemsParams{
		Limit: 10,
		Order: responses.OrderDesc,
	})
	if err != nil {
		t.Fatalf("list desc: %v", err)
	}
	if page.Data[0].ID != "item_03" || page.Data[3].ID != "item_00" {
		t.Fatalf("desc order wrong: %+v", page.Data)
	}

	page, err = store.ListInputItems(ctx, "resp_1", responses.ListInputItemsParams{
		Limit:  10,
		Before: "item_02",
	})
	if err != nil {
		t.Fatalf("list before: %v", err)
	}
	if len(page.Data) != 2 || page.Data[1].ID != "item_01" {
		t.Fatalf("before cursor should be exclusive, got %+v", page.Data)
	}
}

func TestListInputItemsValidation(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	_ = store.Put(ctx, storedRecord("resp_1", 1))

	if _, err := store.ListInputItems(ctx, "resp_1", responses.ListInputItemsParams{Limit: 101}); apierror.KindOf(err) != apierror.KindValidation {
		t.Fatalf("limit over 100 should fail validation, got %v", err)
	}
	if _, err := store.ListInputItems(ctx, "resp_1", responses.ListInputItemsParams{Order: "sideways"}); apierror.KindOf(err) != apierror.KindValidation {
		t.Fatalf("bad order should fail validation, got %v", err)
	}
	if _, err := store.ListInputItems(ctx, "resp_missing", responses.ListInputItemsParams{}); apierror.KindOf(err) != apierror.KindNotFound {
		t.Fatalf("missing response should be not_found, got %v", err)
	}
}
