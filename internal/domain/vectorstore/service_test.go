package vectorstore_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/file"
	"openresponses.ai/gateway/internal/domain/vectorstore"
	"openresponses.ai/gateway/internal/infrastructure/repository/vectorstorerepo"
)

type fakeFiles struct {
	contents map[string]string
	names    map[string]string
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{contents: make(map[string]string), names: make(map[string]string)}
}

func (f *fakeFiles) add(id, name, content string) {
	f.contents[id] = content
	f.names[id] = name
}

func (f *fakeFiles) Save(context.Context, string, string, io.Reader) (*file.File, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeFiles) Stat(_ context.Context, id string) (*file.File, error) {
	content, ok := f.contents[id]
	if !ok {
		return nil, vectorstore.ErrFileNotFound(id)
	}
	return &file.File{ID: id, Filename: f.names[id], Bytes: int64(len(content))}, nil
}

func (f *fakeFiles) Content(_ context.Context, id string) (io.ReadCloser, error) {
	content, ok := f.contents[id]
	if !ok {
		return nil, vectorstore.ErrFileNotFound(id)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func (f *fakeFiles) Delete(context.Context, string) error { return nil }

func (f *fakeFiles) List(context.Context) ([]*file.File, error) { return nil, nil }

type fakeEmbedder struct {
	err   error
	calls int
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeChunker struct{}

func (fakeChunker) Chunk(text string, _ *vectorstore.ChunkingStrategy) ([]string, error) {
	parts := strings.Split(text, "\n\n")
	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks, nil
}

type fakeSemantic struct {
	indexed map[string][]vectorstore.Chunk // store/file -> chunks
	hits    []vectorstore.SemanticHit
	deleted []string
	calls   int
}

func newFakeSemantic() *fakeSemantic {
	return &fakeSemantic{indexed: make(map[string][]vectorstore.Chunk)}
}

func (s *fakeSemantic) IndexFile(_ context.Context, storeID, fileID string, chunks []vectorstore.Chunk) error {
	s.indexed[storeID+"/"+fileID] = chunks
	return nil
}

func (s *fakeSemantic) Search(context.Context, []string, []float32, int, *vectorstore.Filter) ([]vectorstore.SemanticHit, error) {
	s.calls++
	return s.hits, nil
}

func (s *fakeSemantic) DeleteFile(_ context.Context, storeID, fileID string) error {
	delete(s.indexed, storeID+"/"+fileID)
	s.deleted = append(s.deleted, storeID+"/"+fileID)
	return nil
}

func (s *fakeSemantic) DeleteStore(_ context.Context, storeID string) error {
	for key := range s.indexed {
		if strings.HasPrefix(key, storeID+"/") {
			delete(s.indexed, key)
		}
	}
	return nil
}

func (s *fakeSemantic) FileMetadata(context.Context, string, string) (map[string]any, bool) {
	return nil, false
}

type fakeLexical struct {
	indexed map[string][]vectorstore.Chunk
	hits    []vectorstore.LexicalHit
	calls   int
}

func newFakeLexical() *fakeLexical {
	return &fakeLexical{indexed: make(map[string][]vectorstore.Chunk)}
}

func (l *fakeLexical) IndexFile(storeID, fileID string, chunks []vectorstore.Chunk) {
	l.indexed[storeID+"/"+fileID] = chunks
}

func (l *fakeLexical) Search(string, int, []string) []vectorstore.LexicalHit {
	l.calls++
	return l.hits
}

func (l *fakeLexical) DeleteFile(storeID, fileID string) {
	delete(l.indexed, storeID+"/"+fileID)
}

func (l *fakeLexical) DeleteStore(string) {}

type fixture struct {
	service  *vectorstore.Service
	files    *fakeFiles
	semantic *fakeSemantic
	lexical  *fakeLexical
	embedder *fakeEmbedder
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		files:    newFakeFiles(),
		semantic: newFakeSemantic(),
		lexical:  newFakeLexical(),
		embedder: &fakeEmbedder{},
		now:      time.Unix(1_700_000_000, 0),
	}
	f.service = vectorstore.NewService(
		vectorstorerepo.NewMemory(),
		f.semantic,
		f.lexical,
		f.embedder,
		fakeChunker{},
		f.files,
		nil,
		nil,
		vectorstore.SyncScheduler{},
		zerolog.Nop(),
	).WithClock(func() time.Time { return f.now })
	return f
}

func TestCreateStoreIndexesFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.files.add("file-1", "notes.txt", "first chunk\n\nsecond chunk")

	store, err := f.service.CreateStore(ctx, vectorstore.CreateStoreParams{
		Name:    "docs",
		FileIDs: []string{"file-1"},
	})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if store.Status != vectorstore.StatusCompleted {
		t.Fatalf("status = %q, want completed", store.Status)
	}
	if store.FileCounts.Completed != 1 || store.FileCounts.InProgress != 0 {
		t.Fatalf("unexpected counts %+v", store.FileCounts)
	}
	if store.UsageBytes == 0 {
		t.Fatal("usage bytes not accounted")
	}

	chunks := f.semantic.indexed[store.ID+"/file-1"]
	if len(chunks) != 2 {
		t.Fatalf("indexed %d chunks, want 2", len(chunks))
	}
	if chunks[1].ChunkIndex != 1 || chunks[1].FileID != "file-1" {
		t.Fatalf("unexpected chunk %+v", chunks[1])
	}
	if len(f.lexical.indexed[store.ID+"/file-1"]) != 2 {
		t.Fatal("lexical index not populated")
	}
}

func TestIndexingFailureMarksFileFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.files.add("file-1", "notes.txt", "some content")
	f.embedder.err = errors.New("embedding backend down")

	store, err := f.service.CreateStore(ctx, vectorstore.CreateStoreParams{FileIDs: []string{"file-1"}})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if store.FileCounts.Failed != 1 {
		t.Fatalf("unexpected counts %+v", store.FileCounts)
	}
	if store.Status != vectorstore.StatusCompleted {
		t.Fatalf("status = %q, want completed after settle", store.Status)
	}

	storeFile, err := f.service.GetFile(ctx, store.ID, "file-1")
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if storeFile.Status != vectorstore.FileStatusFailed || storeFile.LastError == nil {
		t.Fatalf("unexpected file %+v", storeFile)
	}
}

func TestAttachUnknownFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	store, _ := f.service.CreateStore(ctx, vectorstore.CreateStoreParams{Name: "docs"})

	_, err := f.service.AttachFile(ctx, store.ID, vectorstore.AttachFileParams{FileID: "file-missing"})
	if apierror.KindOf(err) != apierror.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func chunkNamed(id string) vectorstore.Chunk {
	return vectorstore.Chunk{ChunkID: id, FileID: "file-1", Filename: "notes.txt"}
}

func TestSearchHybridFusionOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.files.add("file-1", "notes.txt", "content")
	store, _ := f.service.CreateStore(ctx, vectorstore.CreateStoreParams{FileIDs: []string{"file-1"}})

	// Semantic ranks a,b,c; lexical ranks b,c,a. Fusion puts b first.
	f.semantic.hits = []vectorstore.SemanticHit{
		{Chunk: chunkNamed("a"), Score: 0.9},
		{Chunk: chunkNamed("b"), Score: 0.8},
		{Chunk: chunkNamed("c"), Score: 0.7},
	}
	f.lexical.hits = []vectorstore.LexicalHit{
		{Chunk: chunkNamed("b"), Score: 3},
		{Chunk: chunkNamed("c"), Score: 2},
		{Chunk: chunkNamed("a"), Score: 1},
	}

	resp, err := f.service.Search(ctx, vectorstore.SearchQuery{
		Query:          "anything",
		VectorStoreIDs: []string{store.ID},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Data) != 3 {
		t.Fatalf("got %d results, want 3", len(resp.Data))
	}
	got := []string{resp.Data[0].ChunkID, resp.Data[1].ChunkID, resp.Data[2].ChunkID}
	want := []string{"b", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if f.lexical.calls != 1 {
		t.Fatalf("lexical searched %d times, want 1", f.lexical.calls)
	}
}

func TestSearchSemanticOnlyForRankerNone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.files.add("file-1", "notes.txt", "content")
	store, _ := f.service.CreateStore(ctx, vectorstore.CreateStoreParams{FileIDs: []string{"file-1"}})

	f.semantic.hits = []vectorstore.SemanticHit{
		{Chunk: chunkNamed("a"), Score: 0.9},
		{Chunk: chunkNamed("b"), Score: 0.4},
	}

	resp, err := f.service.Search(ctx, vectorstore.SearchQuery{
		Query:          "anything",
		VectorStoreIDs: []string{store.ID},
		RankingOptions: &vectorstore.RankingOptions{Ranker: vectorstore.RankerNone, ScoreThreshold: 0.5},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if f.lexical.calls != 0 {
		t.Fatal("lexical index should not be searched when ranker is none")
	}
	if len(resp.Data) != 1 || resp.Data[0].ChunkID != "a" {
		t.Fatalf("unexpected results %+v", resp.Data)
	}
}

func TestSearchMergesFileAttributesOverChunk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.files.add("file-1", "notes.txt", "content")
	store, _ := f.service.CreateStore(ctx, vectorstore.CreateStoreParams{FileIDs: []string{"file-1"}})

	if _, err := f.service.UpdateFileAttributes(ctx, store.ID, "file-1", map[string]any{"lang": "go"}); err != nil {
		t.Fatalf("update attributes: %v", err)
	}

	hit := chunkNamed("a")
	hit.Attributes = map[string]any{"lang": "rust", "chunked": true}
	f.semantic.hits = []vectorstore.SemanticHit{{Chunk: hit, Score: 0.9}}

	resp, err := f.service.Search(ctx, vectorstore.SearchQuery{
		Query:          "anything",
		VectorStoreIDs: []string{store.ID},
		RankingOptions: &vectorstore.RankingOptions{Ranker: vectorstore.RankerNone},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Data[0].Attributes["lang"] != "go" {
		t.Fatalf("file attribute should win, got %v", resp.Data[0].Attributes)
	}
	if resp.Data[0].Attributes["chunked"] != true {
		t.Fatal("chunk-only attribute should survive the merge")
	}
}

func TestSearchExpiredStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	store, err := f.service.CreateStore(ctx, vectorstore.CreateStoreParams{
		Name:         "ephemeral",
		ExpiresAfter: &vectorstore.ExpiresAfter{Anchor: "last_active_at", Days: 1},
	})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	f.now = f.now.Add(48 * time.Hour)

	got, err := f.service.GetStore(ctx, store.ID)
	if err != nil {
		t.Fatalf("get store: %v", err)
	}
	if got.Status != vectorstore.StatusExpired {
		t.Fatalf("status = %q, want expired", got.Status)
	}

	_, err = f.service.Search(ctx, vectorstore.SearchQuery{Query: "q", VectorStoreIDs: []string{store.ID}})
	if apierror.KindOf(err) != apierror.KindValidation {
		t.Fatalf("expected validation error for expired store, got %v", err)
	}
}

func TestExpireSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.service.CreateStore(ctx, vectorstore.CreateStoreParams{
		ExpiresAfter: &vectorstore.ExpiresAfter{Days: 1},
	})
	_, _ = f.service.CreateStore(ctx, vectorstore.CreateStoreParams{Name: "keeper"})

	f.now = f.now.Add(72 * time.Hour)
	flipped, err := f.service.ExpireSweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if flipped != 1 {
		t.Fatalf("flipped %d stores, want 1", flipped)
	}
}

func TestDetachFileRemovesChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.files.add("file-1", "notes.txt", "content")
	store, _ := f.service.CreateStore(ctx, vectorstore.CreateStoreParams{FileIDs: []string{"file-1"}})

	if err := f.service.DetachFile(ctx, store.ID, "file-1"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if len(f.semantic.indexed) != 0 || len(f.lexical.indexed) != 0 {
		t.Fatal("chunks should be removed from both indexes")
	}

	got, _ := f.service.GetStore(ctx, store.ID)
	if got.FileCounts.Total != 0 || got.UsageBytes != 0 {
		t.Fatalf("counts not settled: %+v usage=%d", got.FileCounts, got.UsageBytes)
	}
	if _, err := f.service.GetFile(ctx, store.ID, "file-1"); apierror.KindOf(err) != apierror.KindNotFound {
		t.Fatalf("expected not_found after detach, got %v", err)
	}
}

func TestCreateStoreRejectsBadChunking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.service.CreateStore(ctx, vectorstore.CreateStoreParams{
		ChunkingStrategy: &vectorstore.ChunkingStrategy{
			Type:   vectorstore.ChunkingStatic,
			Static: &vectorstore.StaticChunking{MaxChunkSizeTokens: 100, ChunkOverlapTokens: 100},
		},
	})
	if apierror.KindOf(err) != apierror.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
