package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"openresponses.ai/gateway/internal/domain/vectorstore"
)

// Reserved payload keys on qdrant points.
const (
	payloadChunkID    = "chunk_id"
	payloadFileID     = "file_id"
	payloadFilename   = "filename"
	payloadChunkIndex = "chunk_index"
	payloadText       = "text"
)

// QdrantIndex implements the semantic index on an external qdrant server,
// one collection per vector store.
type QdrantIndex struct {
	client *qdrant.Client
	logger zerolog.Logger

	mu        sync.RWMutex
	fileAttrs map[string]map[string]map[string]any // store id -> file id -> attributes
}

// NewQdrantIndex connects to a qdrant server at host:port (gRPC).
func NewQdrantIndex(addr, apiKey string, logger zerolog.Logger) (*QdrantIndex, error) {
	host, port := splitAddr(addr)
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: false,
		GrpcOptions: []grpc.DialOption{
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                30 * time.Second,
				PermitWithoutStream: true,
			}),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client for %s: %w", addr, err)
	}
	return &QdrantIndex{
		client:    client,
		logger:    logger.With().Str("component", "qdrant-vector-index").Logger(),
		fileAttrs: make(map[string]map[string]map[string]any),
	}, nil
}

func splitAddr(addr string) (string, int) {
	host, portRaw, ok := strings.Cut(addr, ":")
	if !ok {
		return addr, 6334
	}
	port := 0
	fmt.Sscanf(portRaw, "%d", &port)
	if port == 0 {
		port = 6334
	}
	return host, port
}

// IndexFile replaces the file's points in the store collection.
func (q *QdrantIndex) IndexFile(ctx context.Context, storeID, fileID string, chunks []vectorstore.Chunk) error {
	dimension := 0
	for _, chunk := range chunks {
		if len(chunk.Embedding) > 0 {
			dimension = len(chunk.Embedding)
			break
		}
	}
	if dimension == 0 {
		return nil
	}

	if err := q.ensureCollection(ctx, storeID, dimension); err != nil {
		return err
	}

	// Drop prior chunks before the replacements become searchable.
	if err := q.deleteByFile(ctx, storeID, fileID); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		if len(chunk.Embedding) != dimension {
			return vectorstore.ErrEmbeddingDimensionMismatch(dimension, len(chunk.Embedding))
		}
		payload, err := chunkPayload(chunk)
		if err != nil {
			return err
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunk.ChunkID)).String()),
			Vectors: qdrant.NewVectors(chunk.Embedding...),
			Payload: payload,
		})
	}

	wait := true
	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: storeID,
		Points:         points,
		Wait:           &wait,
	}); err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}

	q.mu.Lock()
	files, ok := q.fileAttrs[storeID]
	if !ok {
		files = make(map[string]map[string]any)
		q.fileAttrs[storeID] = files
	}
	if len(chunks) > 0 {
		files[fileID] = chunks[0].Attributes
	} else {
		files[fileID] = nil
	}
	q.mu.Unlock()
	return nil
}

// Search queries each store collection and merges the results.
func (q *QdrantIndex) Search(ctx context.Context, storeIDs []string, query []float32, k int, filter *vectorstore.Filter) ([]vectorstore.SemanticHit, error) {
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}

	qdrantFilter, err := translateFilter(filter)
	if err != nil {
		return nil, err
	}

	var hits []vectorstore.SemanticHit
	for _, storeID := range storeIDs {
		exists, err := q.client.CollectionExists(ctx, storeID)
		if err != nil {
			return nil, fmt.Errorf("check collection %s: %w", storeID, err)
		}
		if !exists {
			continue
		}

		request := &qdrant.SearchPoints{
			CollectionName: storeID,
			Vector:         query,
			Limit:          uint64(k),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         qdrantFilter,
		}
		result, err := q.client.GetPointsClient().Search(ctx, request)
		if err != nil {
			return nil, fmt.Errorf("search collection %s: %w", storeID, err)
		}
		for _, point := range result.GetResult() {
			chunk := chunkFromPayload(storeID, point.GetPayload())
			// Cosine similarity from qdrant lives in [-1,1].
			score := (float64(point.GetScore()) + 1) / 2
			hits = append(hits, vectorstore.SemanticHit{Chunk: chunk, Score: score})
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

// DeleteFile removes the file's points from the store collection.
func (q *QdrantIndex) DeleteFile(ctx context.Context, storeID, fileID string) error {
	exists, err := q.client.CollectionExists(ctx, storeID)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", storeID, err)
	}
	if exists {
		if err := q.deleteByFile(ctx, storeID, fileID); err != nil {
			return err
		}
	}

	q.mu.Lock()
	delete(q.fileAttrs[storeID], fileID)
	q.mu.Unlock()
	return nil
}

// DeleteStore drops the store collection.
func (q *QdrantIndex) DeleteStore(ctx context.Context, storeID string) error {
	if err := q.client.DeleteCollection(ctx, storeID); err != nil {
		return fmt.Errorf("delete collection %s: %w", storeID, err)
	}
	q.mu.Lock()
	delete(q.fileAttrs, storeID)
	q.mu.Unlock()
	return nil
}

// FileMetadata returns the attributes the file was indexed with.
func (q *QdrantIndex) FileMetadata(_ context.Context, storeID, fileID string) (map[string]any, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	files, ok := q.fileAttrs[storeID]
	if !ok {
		return nil, false
	}
	attrs, ok := files[fileID]
	return attrs, ok
}

// Close releases the underlying gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, storeID string, dimension int) error {
	exists, err := q.client.CollectionExists(ctx, storeID)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", storeID, err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: storeID,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("create collection %s: %w", storeID, err)
	}
	return nil
}

func (q *QdrantIndex) deleteByFile(ctx context.Context, storeID, fileID string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{fieldMatchKeyword(payloadFileID, fileID)},
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: storeID,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return fmt.Errorf("delete points for file %s: %w", fileID, err)
	}
	return nil
}

func chunkPayload(chunk vectorstore.Chunk) (map[string]*qdrant.Value, error) {
	payload := make(map[string]*qdrant.Value, len(chunk.Attributes)+5)
	for key, value := range chunk.Attributes {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return nil, fmt.Errorf("convert attribute %s: %w", key, err)
		}
		payload[key] = val
	}
	reserved := map[string]any{
		payloadChunkID:    chunk.ChunkID,
		payloadFileID:     chunk.FileID,
		payloadFilename:   chunk.Filename,
		payloadChunkIndex: int64(chunk.ChunkIndex),
		payloadText:       chunk.Text,
	}
	for key, value := range reserved {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return nil, fmt.Errorf("convert payload field %s: %w", key, err)
		}
		payload[key] = val
	}
	return payload, nil
}

func chunkFromPayload(storeID string, payload map[string]*qdrant.Value) vectorstore.Chunk {
	chunk := vectorstore.Chunk{VectorStoreID: storeID}
	attrs := make(map[string]any)
	for key, value := range payload {
		switch key {
		case payloadChunkID:
			chunk.ChunkID = value.GetStringValue()
		case payloadFileID:
			chunk.FileID = value.GetStringValue()
		case payloadFilename:
			chunk.Filename = value.GetStringValue()
		case payloadChunkIndex:
			chunk.ChunkIndex = int(value.GetIntegerValue())
		case payloadText:
			chunk.Text = value.GetStringValue()
		default:
			attrs[key] = valueToAny(value)
		}
	}
	if len(attrs) > 0 {
		chunk.Attributes = attrs
	}
	return chunk
}

func valueToAny(value *qdrant.Value) any {
	switch kind := value.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return value.String()
	}
}

// translateFilter converts the attribute filter tree to qdrant's filter form.
func translateFilter(filter *vectorstore.Filter) (*qdrant.Filter, error) {
	if filter == nil {
		return nil, nil
	}
	condition, err := translateCondition(filter)
	if err != nil {
		return nil, err
	}
	if field, ok := condition.GetConditionOneOf().(*qdrant.Condition_Filter); ok {
		return field.Filter, nil
	}
	return &qdrant.Filter{Must: []*qdrant.Condition{condition}}, nil
}

func translateCondition(filter *vectorstore.Filter) (*qdrant.Condition, error) {
	switch filter.Type {
	case vectorstore.OpAnd, vectorstore.OpOr:
		children := make([]*qdrant.Condition, 0, len(filter.Filters))
		for _, child := range filter.Filters {
			condition, err := translateCondition(child)
			if err != nil {
				return nil, err
			}
			children = append(children, condition)
		}
		sub := &qdrant.Filter{}
		if filter.Type == vectorstore.OpAnd {
			sub.Must = children
		} else {
			sub.Should = children
		}
		return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Filter{Filter: sub}}, nil
	case vectorstore.OpEq, vectorstore.OpNe:
		condition, err := matchCondition(filter.Key, filter.Value)
		if err != nil {
			return nil, err
		}
		if filter.Type == vectorstore.OpNe {
			return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Filter{
				Filter: &qdrant.Filter{MustNot: []*qdrant.Condition{condition}},
			}}, nil
		}
		return condition, nil
	case vectorstore.OpGt, vectorstore.OpGte, vectorstore.OpLt, vectorstore.OpLte:
		number, ok := numericValue(filter.Value)
		if !ok {
			return nil, fmt.Errorf("range filter on %s requires a numeric value", filter.Key)
		}
		rng := &qdrant.Range{}
		switch filter.Type {
		case vectorstore.OpGt:
			rng.Gt = &number
		case vectorstore.OpGte:
			rng.Gte = &number
		case vectorstore.OpLt:
			rng.Lt = &number
		case vectorstore.OpLte:
			rng.Lte = &number
		}
		return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{Key: filter.Key, Range: rng},
		}}, nil
	default:
		return nil, fmt.Errorf("unknown filter type %q", filter.Type)
	}
}

func matchCondition(key string, value any) (*qdrant.Condition, error) {
	switch v := value.(type) {
	case string:
		return fieldMatchKeyword(key, v), nil
	case bool:
		return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{Key: key, Match: &qdrant.Match{
				MatchValue: &qdrant.Match_Boolean{Boolean: v},
			}},
		}}, nil
	default:
		number, ok := numericValue(value)
		if !ok {
			return nil, fmt.Errorf("unsupported match value for key %s", key)
		}
		return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{Key: key, Match: &qdrant.Match{
				MatchValue: &qdrant.Match_Integer{Integer: int64(number)},
			}},
		}}, nil
	}
}

func fieldMatchKeyword(key, keyword string) *qdrant.Condition {
	return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{
		Field: &qdrant.FieldCondition{Key: key, Match: &qdrant.Match{
			MatchValue: &qdrant.Match_Keyword{Keyword: keyword},
		}},
	}}
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

var _ vectorstore.SemanticIndex = (*QdrantIndex)(nil)
