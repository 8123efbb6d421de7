package vectorstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/file"
)

const defaultMaxNumResults = 10

// Scheduler runs background tasks, typically a worker pool.
type Scheduler interface {
	Schedule(name string, task func(ctx context.Context))
}

// SyncScheduler runs tasks inline; used when no pool is wired and in tests.
type SyncScheduler struct{}

// Schedule implements Scheduler.
func (SyncScheduler) Schedule(_ string, task func(ctx context.Context)) {
	task(context.Background())
}

// Rewriter produces a search-optimized query from the caller's query.
type Rewriter interface {
	Rewrite(ctx context.Context, query string) (string, error)
}

// Service orchestrates store lifecycles, file indexing, and search.
type Service struct {
	repo      Repository
	semantic  SemanticIndex
	lexical   LexicalIndex
	embedder  Embedder
	chunker   Chunker
	files     file.Storage
	reranker  Reranker
	rewriter  Rewriter
	scheduler Scheduler
	logger    zerolog.Logger
	now       func() time.Time
	indexed   func(outcome string)

	indexMu sync.Mutex
	inFile  map[string]*sync.Mutex // store id + file id -> per-file indexing lock
}

// NewService wires the vector store service. reranker and rewriter may be
// nil; scheduler may be nil for inline execution.
func NewService(
	repo Repository,
	semantic SemanticIndex,
	lexical LexicalIndex,
	embedder Embedder,
	chunker Chunker,
	files file.Storage,
	reranker Reranker,
	rewriter Rewriter,
	scheduler Scheduler,
	logger zerolog.Logger,
) *Service {
	if scheduler == nil {
		scheduler = SyncScheduler{}
	}
	return &Service{
		repo:      repo,
		semantic:  semantic,
		lexical:   lexical,
		embedder:  embedder,
		chunker:   chunker,
		files:     files,
		reranker:  reranker,
		rewriter:  rewriter,
		scheduler: scheduler,
		logger:    logger.With().Str("component", "vectorstore-service").Logger(),
		now:       time.Now,
		inFile:    make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the service clock, for tests and the sweeper.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithIndexObserver registers a callback invoked with "completed" or
// "failed" after each file indexing attempt.
func (s *Service) WithIndexObserver(observer func(outcome string)) *Service {
	s.indexed = observer
	return s
}

// CreateStoreParams is the create-store request.
type CreateStoreParams struct {
	Name             string
	Metadata         map[string]string
	FileIDs          []string
	ChunkingStrategy *ChunkingStrategy
	ExpiresAfter     *ExpiresAfter
}

// CreateStore persists the store and schedules indexing of any provided files.
func (s *Service) CreateStore(ctx context.Context, params CreateStoreParams) (*VectorStore, error) {
	if params.ExpiresAfter != nil {
		if params.ExpiresAfter.Days <= 0 {
			return nil, apierror.Validation("expires_after.days must be positive, got %d", params.ExpiresAfter.Days)
		}
		if params.ExpiresAfter.Anchor == "" {
			params.ExpiresAfter.Anchor = "last_active_at"
		}
	}
	if _, _, err := validateChunking(params.ChunkingStrategy); err != nil {
		return nil, err
	}

	now := s.now()
	store := &VectorStore{
		ID:           NewStoreID(),
		Object:       "vector_store",
		Name:         params.Name,
		Status:       StatusInProgress,
		CreatedAt:    now.Unix(),
		ExpiresAfter: params.ExpiresAfter,
		Metadata:     params.Metadata,
	}
	store.Touch(now)
	store.FileCounts.Total = len(params.FileIDs)
	store.FileCounts.InProgress = len(params.FileIDs)
	if len(params.FileIDs) == 0 {
		store.Status = StatusCompleted
	}

	if err := s.repo.CreateStore(ctx, store); err != nil {
		return nil, err
	}

	for _, fileID := range params.FileIDs {
		if _, err := s.files.Stat(ctx, fileID); err != nil {
			return nil, err
		}
		storeFile := &StoreFile{
			ID:               fileID,
			Object:           "vector_store.file",
			VectorStoreID:    store.ID,
			Status:           FileStatusInProgress,
			ChunkingStrategy: params.ChunkingStrategy,
			CreatedAt:        now.Unix(),
		}
		if err := s.repo.CreateFile(ctx, storeFile); err != nil {
			return nil, err
		}
		s.scheduleIndexing(store.ID, fileID)
	}
	return s.repo.GetStore(ctx, store.ID)
}

// GetStore returns the store, applying expiration on read.
func (s *Service) GetStore(ctx context.Context, id string) (*VectorStore, error) {
	store, err := s.repo.GetStore(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyExpiry(ctx, store)
}

// UpdateStoreParams carries mutable store fields.
type UpdateStoreParams struct {
	Name         *string
	Metadata     map[string]string
	ExpiresAfter *ExpiresAfter
}

// UpdateStore mutates name, metadata, or expiration policy. Writes to an
// expired store are refused.
func (s *Service) UpdateStore(ctx context.Context, id string, params UpdateStoreParams) (*VectorStore, error) {
	store, err := s.GetStore(ctx, id)
	if err != nil {
		return nil, err
	}
	if store.Status == StatusExpired {
		return nil, ErrStoreExpired(id)
	}
	if params.Name != nil {
		store.Name = *params.Name
	}
	if params.Metadata != nil {
		store.Metadata = params.Metadata
	}
	if params.ExpiresAfter != nil {
		if params.ExpiresAfter.Days <= 0 {
			return nil, apierror.Validation("expires_after.days must be positive, got %d", params.ExpiresAfter.Days)
		}
		store.ExpiresAfter = params.ExpiresAfter
	}
	store.Touch(s.now())
	if err := s.repo.UpdateStore(ctx, store); err != nil {
		return nil, err
	}
	return store, nil
}

// DeleteStore removes the store, its files, and every indexed chunk.
func (s *Service) DeleteStore(ctx context.Context, id string) error {
	if _, err := s.repo.GetStore(ctx, id); err != nil {
		return err
	}
	if err := s.semantic.DeleteStore(ctx, id); err != nil {
		return err
	}
	s.lexical.DeleteStore(id)
	return s.repo.DeleteStore(ctx, id)
}

// ListStores returns all stores, applying expiration on read.
func (s *Service) ListStores(ctx context.Context) ([]*VectorStore, error) {
	stores, err := s.repo.ListStores(ctx)
	if err != nil {
		return nil, err
	}
	for i, store := range stores {
		updated, err := s.applyExpiry(ctx, store)
		if err != nil {
			return nil, err
		}
		stores[i] = updated
	}
	return stores, nil
}

// AttachFileParams is the attach-file request.
type AttachFileParams struct {
	FileID           string
	ChunkingStrategy *ChunkingStrategy
	Attributes       map[string]any
}

// AttachFile registers the file on the store and schedules its indexing.
func (s *Service) AttachFile(ctx context.Context, storeID string, params AttachFileParams) (*StoreFile, error) {
	store, err := s.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if store.Status == StatusExpired {
		return nil, ErrStoreExpired(storeID)
	}
	if _, err := s.files.Stat(ctx, params.FileID); err != nil {
		return nil, err
	}
	if _, _, err := validateChunking(params.ChunkingStrategy); err != nil {
		return nil, err
	}

	storeFile := &StoreFile{
		ID:               params.FileID,
		Object:           "vector_store.file",
		VectorStoreID:    storeID,
		Status:           FileStatusInProgress,
		ChunkingStrategy: params.ChunkingStrategy,
		Attributes:       params.Attributes,
		CreatedAt:        s.now().Unix(),
	}
	if err := s.repo.CreateFile(ctx, storeFile); err != nil {
		return nil, err
	}

	store.FileCounts.Total++
	store.FileCounts.InProgress++
	store.Status = StatusInProgress
	store.Touch(s.now())
	if err := s.repo.UpdateStore(ctx, store); err != nil {
		return nil, err
	}

	s.scheduleIndexing(storeID, params.FileID)
	return storeFile, nil
}

// GetFile returns one store file record.
func (s *Service) GetFile(ctx context.Context, storeID, fileID string) (*StoreFile, error) {
	if _, err := s.GetStore(ctx, storeID); err != nil {
		return nil, err
	}
	return s.repo.GetFile(ctx, storeID, fileID)
}

// ListFiles returns the store's file records.
func (s *Service) ListFiles(ctx context.Context, storeID string) ([]*StoreFile, error) {
	if _, err := s.GetStore(ctx, storeID); err != nil {
		return nil, err
	}
	return s.repo.ListFiles(ctx, storeID)
}

// UpdateFileAttributes replaces the file's attributes. This is the only
// mutation path for attributes; indexed chunks keep their original copies
// and file-level values win at search time.
func (s *Service) UpdateFileAttributes(ctx context.Context, storeID, fileID string, attrs map[string]any) (*StoreFile, error) {
	store, err := s.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if store.Status == StatusExpired {
		return nil, ErrStoreExpired(storeID)
	}
	storeFile, err := s.repo.GetFile(ctx, storeID, fileID)
	if err != nil {
		return nil, err
	}
	storeFile.Attributes = attrs
	if err := s.repo.UpdateFile(ctx, storeFile); err != nil {
		return nil, err
	}
	return storeFile, nil
}

// DetachFile removes the file's record and all of its chunks from both
// indexes.
func (s *Service) DetachFile(ctx context.Context, storeID, fileID string) error {
	store, err := s.GetStore(ctx, storeID)
	if err != nil {
		return err
	}
	storeFile, err := s.repo.GetFile(ctx, storeID, fileID)
	if err != nil {
		return err
	}

	if err := s.semantic.DeleteFile(ctx, storeID, fileID); err != nil {
		return err
	}
	s.lexical.DeleteFile(storeID, fileID)
	if err := s.repo.DeleteFile(ctx, storeID, fileID); err != nil {
		return err
	}

	store.FileCounts.Total--
	switch storeFile.Status {
	case FileStatusInProgress:
		store.FileCounts.InProgress--
	case FileStatusCompleted:
		store.FileCounts.Completed--
	case FileStatusFailed:
		store.FileCounts.Failed--
	case FileStatusCancelled:
		store.FileCounts.Cancelled--
	}
	store.UsageBytes -= storeFile.UsageBytes
	store.RecomputeStatus()
	store.Touch(s.now())
	return s.repo.UpdateStore(ctx, store)
}

func (s *Service) scheduleIndexing(storeID, fileID string) {
	s.scheduler.Schedule("index "+fileID, func(ctx context.Context) {
		if err := s.indexFile(ctx, storeID, fileID); err != nil {
			s.logger.Error().Str("vector_store_id", storeID).Str("file_id", fileID).Err(err).Msg("file indexing failed")
		}
	})
}

func (s *Service) fileLock(storeID, fileID string) *sync.Mutex {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	key := storeID + "/" + fileID
	mu, ok := s.inFile[key]
	if !ok {
		mu = &sync.Mutex{}
		s.inFile[key] = mu
	}
	return mu
}

// indexFile chunks, embeds, and indexes one file, then settles its status.
// Concurrent submissions for the same file are serialized so the final
// chunk set is exactly one submission.
func (s *Service) indexFile(ctx context.Context, storeID, fileID string) error {
	mu := s.fileLock(storeID, fileID)
	mu.Lock()
	defer mu.Unlock()

	storeFile, err := s.repo.GetFile(ctx, storeID, fileID)
	if err != nil {
		return err
	}

	indexErr := s.buildIndex(ctx, storeFile)
	if indexErr != nil {
		storeFile.Status = FileStatusFailed
		storeFile.LastError = &FileError{Code: "indexing_failed", Message: indexErr.Error()}
	} else {
		storeFile.Status = FileStatusCompleted
		storeFile.LastError = nil
	}
	if s.indexed != nil {
		s.indexed(storeFile.Status)
	}
	if err := s.repo.UpdateFile(ctx, storeFile); err != nil {
		return err
	}

	store, err := s.repo.GetStore(ctx, storeID)
	if err != nil {
		return err
	}
	store.FileCounts.InProgress--
	if indexErr != nil {
		store.FileCounts.Failed++
	} else {
		store.FileCounts.Completed++
		store.UsageBytes += storeFile.UsageBytes
	}
	store.RecomputeStatus()
	store.Touch(s.now())
	if err := s.repo.UpdateStore(ctx, store); err != nil {
		return err
	}
	return indexErr
}

func (s *Service) buildIndex(ctx context.Context, storeFile *StoreFile) error {
	meta, err := s.files.Stat(ctx, storeFile.ID)
	if err != nil {
		return err
	}
	reader, err := s.files.Content(ctx, storeFile.ID)
	if err != nil {
		return err
	}
	content, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		return fmt.Errorf("read file content: %w", err)
	}

	texts, err := s.chunker.Chunk(string(content), storeFile.ChunkingStrategy)
	if err != nil {
		return err
	}

	embeddings, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}

	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{
			ChunkID:       fmt.Sprintf("%s_chunk_%d", storeFile.ID, i),
			FileID:        storeFile.ID,
			VectorStoreID: storeFile.VectorStoreID,
			Filename:      meta.Filename,
			ChunkIndex:    i,
			Text:          text,
			Embedding:     embeddings[i],
			Attributes:    storeFile.Attributes,
		}
	}

	if err := s.semantic.IndexFile(ctx, storeFile.VectorStoreID, storeFile.ID, chunks); err != nil {
		return err
	}
	s.lexical.IndexFile(storeFile.VectorStoreID, storeFile.ID, chunks)
	storeFile.UsageBytes = int64(len(content))
	return nil
}

// Search runs the full pipeline over one or more stores.
func (s *Service) Search(ctx context.Context, query SearchQuery) (*SearchResponse, error) {
	if query.Query == "" {
		return nil, apierror.Validation("query is required")
	}
	if len(query.VectorStoreIDs) == 0 {
		return nil, apierror.Validation("at least one vector store id is required")
	}
	if query.Filters != nil {
		if err := query.Filters.Validate(); err != nil {
			return nil, apierror.Validation("invalid filter: %s", err.Error())
		}
	}

	maxResults := query.MaxNumResults
	if maxResults <= 0 {
		maxResults = defaultMaxNumResults
	}

	// Expired stores refuse searches.
	eligibleFiles := make(map[string]map[string]any)
	for _, storeID := range query.VectorStoreIDs {
		store, err := s.GetStore(ctx, storeID)
		if err != nil {
			return nil, err
		}
		if store.Status == StatusExpired {
			return nil, ErrStoreExpired(storeID)
		}
		files, err := s.repo.ListFiles(ctx, storeID)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.Status == FileStatusCompleted {
				eligibleFiles[f.ID] = f.Attributes
			}
		}
	}

	searchQuery := query.Query
	if query.RewriteQuery && s.rewriter != nil {
		rewritten, err := s.rewriter.Rewrite(ctx, query.Query)
		if err != nil {
			s.logger.Warn().Err(err).Msg("query rewrite failed, using original query")
		} else if rewritten != "" {
			searchQuery = rewritten
		}
	}

	response := &SearchResponse{
		Object:      "vector_store.search_results.page",
		SearchQuery: searchQuery,
		Data:        []SearchResult{},
	}
	if len(eligibleFiles) == 0 {
		return response, nil
	}

	combined := combinedFilter(eligibleFiles, query.Filters)
	fetchK := maxResults * 4
	if fetchK < 20 {
		fetchK = 20
	}

	var (
		semanticHits []SemanticHit
		lexicalHits  []LexicalHit
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		vector, err := s.embedder.Embed(groupCtx, []string{searchQuery})
		if err != nil {
			return err
		}
		semanticHits, err = s.semantic.Search(groupCtx, query.VectorStoreIDs, vector[0], fetchK, combined)
		return err
	})
	hybrid := query.RankingOptions.HybridEnabled()
	if hybrid {
		group.Go(func() error {
			lexicalHits = s.lexical.Search(searchQuery, fetchK, query.VectorStoreIDs)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var candidates []Candidate
	if hybrid {
		candidates = FuseRRF(semanticHits, lexicalHits, DefaultRRFK)
	} else {
		candidates = make([]Candidate, len(semanticHits))
		for i, hit := range semanticHits {
			candidates[i] = Candidate{Chunk: hit.Chunk, Score: hit.Score}
		}
	}

	if query.RankingOptions != nil {
		candidates = ApplyThreshold(candidates, query.RankingOptions.ScoreThreshold)
	}
	if s.reranker != nil && rerankRequested(query.RankingOptions) {
		reranked, err := s.reranker.Rerank(ctx, searchQuery, candidates, maxResults)
		if err != nil {
			s.logger.Warn().Err(err).Msg("rerank failed, keeping fused order")
		} else {
			candidates = reranked
		}
	}
	candidates = Truncate(candidates, maxResults)

	for _, candidate := range candidates {
		fileAttrs, ok := eligibleFiles[candidate.Chunk.FileID]
		if !ok {
			continue
		}
		merged := MergeAttributes(candidate.Chunk.Attributes, fileAttrs)
		if query.Filters != nil && !query.Filters.Matches(withIdentity(merged, candidate.Chunk)) {
			continue
		}
		response.Data = append(response.Data, SearchResult{
			FileID:     candidate.Chunk.FileID,
			Filename:   candidate.Chunk.Filename,
			Score:      candidate.Score,
			ChunkID:    candidate.Chunk.ChunkID,
			ChunkIndex: candidate.Chunk.ChunkIndex,
			Attributes: merged,
			Content: []ContentPart{
				{Type: "text", Text: candidate.Chunk.Text},
			},
			Annotations: []Annotation{
				{
					Type:     "file_citation",
					Index:    candidate.Chunk.ChunkIndex,
					FileID:   candidate.Chunk.FileID,
					Filename: candidate.Chunk.Filename,
				},
			},
		})
	}
	return response, nil
}

// ExpireSweep flips every store past its deadline to expired. Returns the
// number of stores flipped.
func (s *Service) ExpireSweep(ctx context.Context) (int, error) {
	stores, err := s.repo.ListStores(ctx)
	if err != nil {
		return 0, err
	}
	flipped := 0
	now := s.now()
	for _, store := range stores {
		if store.Status != StatusExpired && store.Expired(now) {
			store.Status = StatusExpired
			if err := s.repo.UpdateStore(ctx, store); err != nil {
				return flipped, err
			}
			flipped++
		}
	}
	return flipped, nil
}

// applyExpiry flips an overdue store to expired and persists the flip once.
func (s *Service) applyExpiry(ctx context.Context, store *VectorStore) (*VectorStore, error) {
	if store.Status != StatusExpired && store.Expired(s.now()) {
		store.Status = StatusExpired
		if err := s.repo.UpdateStore(ctx, store); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func rerankRequested(options *RankingOptions) bool {
	if options == nil {
		return false
	}
	switch options.Ranker {
	case "", RankerDefault, RankerNone:
		return false
	default:
		return true
	}
}

// combinedFilter restricts results to eligible files and applies the
// caller's filter on top.
func combinedFilter(eligible map[string]map[string]any, userFilter *Filter) *Filter {
	fileIDs := make([]string, 0, len(eligible))
	for id := range eligible {
		fileIDs = append(fileIDs, id)
	}
	sort.Strings(fileIDs)
	children := make([]*Filter, len(fileIDs))
	for i, id := range fileIDs {
		children[i] = Comparison(OpEq, "file_id", id)
	}
	scope := Or(children...)
	if userFilter == nil {
		return scope
	}
	return And(scope, userFilter)
}

func withIdentity(attrs map[string]any, chunk Chunk) map[string]any {
	view := make(map[string]any, len(attrs)+3)
	for k, v := range attrs {
		view[k] = v
	}
	view["file_id"] = chunk.FileID
	view["filename"] = chunk.Filename
	view["chunk_index"] = chunk.ChunkIndex
	return view
}

func validateChunking(strategy *ChunkingStrategy) (int, int, error) {
	if strategy == nil || strategy.Type == "" || strategy.Type == ChunkingAuto {
		return 0, 0, nil
	}
	if strategy.Type != ChunkingStatic {
		return 0, 0, ErrInvalidChunkingStrategy(fmt.Sprintf("unknown type %q", strategy.Type))
	}
	if strategy.Static == nil {
		return 0, 0, ErrInvalidChunkingStrategy("static strategy requires static parameters")
	}
	if strategy.Static.MaxChunkSizeTokens <= 0 {
		return 0, 0, ErrInvalidChunkingStrategy("max_chunk_size_tokens must be positive")
	}
	if strategy.Static.ChunkOverlapTokens < 0 || strategy.Static.ChunkOverlapTokens >= strategy.Static.MaxChunkSizeTokens {
		return 0, 0, ErrInvalidChunkingStrategy("chunk_overlap_tokens must be in [0, max_chunk_size_tokens)")
	}
	return strategy.Static.MaxChunkSizeTokens, strategy.Static.ChunkOverlapTokens, nil
}
