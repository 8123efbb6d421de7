package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"openresponses.ai/gateway/internal/config"
	"openresponses.ai/gateway/internal/domain/llm"
	"openresponses.ai/gateway/internal/domain/responses"
	"openresponses.ai/gateway/internal/domain/tool"
	"openresponses.ai/gateway/internal/domain/vectorstore"
	"openresponses.ai/gateway/internal/infrastructure/embeddings"
	"openresponses.ai/gateway/internal/infrastructure/llmprovider"
	"openresponses.ai/gateway/internal/infrastructure/metrics"
	"openresponses.ai/gateway/internal/infrastructure/repository/responserepo"
	"openresponses.ai/gateway/internal/infrastructure/repository/vectorstorerepo"
	"openresponses.ai/gateway/internal/infrastructure/storage"
	"openresponses.ai/gateway/internal/infrastructure/vectorindex"
	"openresponses.ai/gateway/internal/interfaces/httpserver"
)

type stubProvider struct{}

func (stubProvider) CreateChatCompletion(_ context.Context, _ llm.Target, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	return &openai.ChatCompletionResponse{
		Model: req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "hello from upstream"},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
	}, nil
}

func (stubProvider) CreateChatCompletionStream(context.Context, llm.Target, openai.ChatCompletionRequest) (llm.Stream, error) {
	return nil, fmt.Errorf("streaming not stubbed")
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text)), 1}
	}
	return vectors, nil
}

type stubChunker struct{}

func (stubChunker) Chunk(text string, _ *vectorstore.ChunkingStrategy) ([]string, error) {
	return strings.Split(text, "\n\n"), nil
}

func (stubChunker) CountTokens(text string) int {
	return len(strings.Fields(text))
}

func newTestServer(t *testing.T) *httpserver.HTTPServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{ServiceName: "gateway-test", Environment: "test", HTTPPort: 0, ShutdownTimeout: time.Second}
	log := zerolog.Nop()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}

	semantic, err := vectorindex.NewMemoryIndex(t.TempDir(), log)
	if err != nil {
		t.Fatalf("vector index: %v", err)
	}
	vectorService := vectorstore.NewService(
		vectorstorerepo.NewMemory(),
		semantic,
		vectorindex.NewLexicalMemoryIndex(),
		stubEmbedder{},
		stubChunker{},
		files,
		nil,
		nil,
		nil,
		log,
	)

	store := responserepo.NewMemory()
	router := llmprovider.NewRouter("http://upstream.invalid/v1")
	orchestrator := responses.NewOrchestrator(
		stubProvider{}, router, store, tool.NewRegistry(), vectorService,
		nil, nil, 4, time.Second, log,
	)

	embedClient := embeddings.NewClient("http://embeddings.invalid/v1", "", "test-embed", time.Second)

	return httpserver.New(cfg, log, httpserver.Handlers{
		Responses:    httpserver.NewResponsesHandler(orchestrator, store, m, log),
		Chat:         httpserver.NewChatHandler(stubProvider{}, router, log),
		Embeddings:   httpserver.NewEmbeddingsHandler(embedClient, stubChunker{}, m, log),
		Files:        httpserver.NewFilesHandler(files, log),
		VectorStores: httpserver.NewVectorStoresHandler(vectorService, log),
	}, m, registry)
}

func doJSON(t *testing.T, server *httpserver.HTTPServer, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	server.Engine().ServeHTTP(rec, req)
	return rec
}

func TestPublicRoutesSkipAuth(t *testing.T) {
	server := newTestServer(t)

	for _, path := range []string{"/", "/healthz", "/readyz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		server.Engine().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestMissingBearerRejected(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/responses", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	server.Engine().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var envelope struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("parse body: %v", err)
	}
	if envelope.Error.Type != "authentication_error" {
		t.Fatalf("error.type = %q, want authentication_error", envelope.Error.Type)
	}
}

func TestResponsesCreateAndFetch(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/v1/responses", map[string]any{
		"model": "gpt-test",
		"input": "say hello",
		"store": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created responses.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if created.Status != responses.StatusCompleted {
		t.Fatalf("status = %q, want completed", created.Status)
	}
	if len(created.Output) == 0 || created.Output[0].TextContent() != "hello from upstream" {
		t.Fatalf("unexpected output: %+v", created.Output)
	}

	rec = doJSON(t, server, http.MethodGet, "/v1/responses/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/v1/responses/"+created.ID+"/input_items", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("input_items status = %d", rec.Code)
	}
	var page struct {
		Object string `json:"object"`
		Data   []any  `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("parse page: %v", err)
	}
	if page.Object != "list" || len(page.Data) == 0 {
		t.Fatalf("unexpected page: %s", rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodDelete, "/v1/responses/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodGet, "/v1/responses/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", rec.Code)
	}
}

func TestUnknownResponseIs404(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/v1/responses/resp_missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestChatCompletionsPassthrough(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/v1/chat/completions", map[string]any{
		"model":    "gpt-test",
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "hello from upstream" {
		t.Fatalf("unexpected choices: %+v", resp.Choices)
	}
}

func uploadFile(t *testing.T, server *httpserver.HTTPServer, filename, content string) string {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.WriteField("purpose", "assistants"); err != nil {
		t.Fatalf("purpose field: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/files", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	server.Engine().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	var uploaded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &uploaded); err != nil {
		t.Fatalf("parse upload: %v", err)
	}
	return uploaded.ID
}

func TestFilesLifecycle(t *testing.T) {
	server := newTestServer(t)

	id := uploadFile(t, server, "notes.txt", "alpha notes")

	rec := doJSON(t, server, http.MethodGet, "/v1/files/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/v1/files/"+id+"/content", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "alpha notes" {
		t.Fatalf("content status = %d, body %q", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodDelete, "/v1/files/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodGet, "/v1/files/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", rec.Code)
	}
}

func TestVectorStoreLifecycleAndSearch(t *testing.T) {
	server := newTestServer(t)

	fileID := uploadFile(t, server, "kb.txt", "postgres tuning guide\n\nindex maintenance basics")

	rec := doJSON(t, server, http.MethodPost, "/v1/vector_stores", map[string]any{
		"name":     "kb",
		"file_ids": []string{fileID},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var store vectorstore.VectorStore
	if err := json.Unmarshal(rec.Body.Bytes(), &store); err != nil {
		t.Fatalf("parse store: %v", err)
	}

	rec = doJSON(t, server, http.MethodPost, "/v1/vector_stores/"+store.ID+"/search", map[string]any{
		"query": "postgres tuning",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d, body %s", rec.Code, rec.Body.String())
	}
	var results vectorstore.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("parse search: %v", err)
	}
	if len(results.Data) == 0 {
		t.Fatalf("no search results: %s", rec.Body.String())
	}
	if results.Data[0].FileID != fileID {
		t.Fatalf("result file = %q, want %q", results.Data[0].FileID, fileID)
	}

	rec = doJSON(t, server, http.MethodDelete, "/v1/vector_stores/"+store.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestResponsesValidation(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/v1/responses", map[string]any{"input": "no model"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var envelope struct {
		Error struct {
			Type string `json:"type"`
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if envelope.Error.Type != "validation_error" || envelope.Error.Code != "missing_model" {
		t.Fatalf("error envelope = %+v", envelope.Error)
	}

	rec = doJSON(t, server, http.MethodPost, "/v1/responses", map[string]any{"model": "openai@gpt-4o-mini"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if envelope.Error.Code != "missing_input" {
		t.Fatalf("error code = %q, want missing_input", envelope.Error.Code)
	}
}
