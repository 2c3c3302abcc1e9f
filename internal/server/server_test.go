package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/fake"

	"ragchat/internal/chromemdb"
	"ragchat/internal/config"
	"ragchat/internal/db"
	"ragchat/internal/embedding"
	"ragchat/internal/llmservice"
	"ragchat/internal/models"
	"ragchat/internal/rag"
	"ragchat/internal/testutil"
)

type testServer struct {
	*Server
	embedCalls int
	embedder   *embedding.Embedder
	generator  *llmservice.Generator
}

func newTestServer(t *testing.T, replies ...string) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Upload.WorkDir = t.TempDir()
	cfg.Upload.StorageDir = t.TempDir()
	cfg.Upload.MaxSizeBytes = 64 * 1024

	index, err := chromemdb.NewVectorDBManager("", true, false, "")
	require.NoError(t, err)

	ts := &testServer{}
	keywords := testutil.KeywordEmbedder("solar", "warranty", "battery", "panels")
	emb, err := embedding.New(embeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		ts.embedCalls++
		return keywords(ctx, texts)
	}), 16, time.Second)
	require.NoError(t, err)
	gen := llmservice.New(fake.NewFakeLLM(replies), "gpt-4.1", time.Second)
	ts.embedder, ts.generator = emb, gen

	bunDB, err := db.ConnectDB(&config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })
	store := db.NewStore(bunDB)
	require.NoError(t, store.InitDB(context.Background()))

	ts.Server = New(Deps{
		Config:    cfg,
		Index:     index,
		Indexer:   rag.NewIndexer(index, emb, cfg),
		Retriever: rag.NewRetriever(index, emb, gen, cfg.RAG),
		Documents: store,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := ts.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return resp.StatusCode, body
}

func uploadRequest(t *testing.T, filename string, data []byte, query string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	target := "/indexing/upload"
	if query != "" {
		target += "?" + query
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(method, target string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

var manual = testutil.PDF(
	"Solar panels convert sunlight into electricity for the home.",
	"The warranty covers the panels for 25 years from installation.",
	"The battery stores surplus energy for use at night.",
)

func storedFiles(t *testing.T, ts *testServer) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(ts.Config.Upload.StorageDir)
	require.NoError(t, err)
	return entries
}

func TestUploadIndexesPDF(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, uploadRequest(t, "Solar Manual.pdf", manual, "chunk_size=200&chunk_overlap=20"))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Document successfully indexed and saved", body["message"])
	assert.Equal(t, "solar_manual", body["collection_name"])
	assert.Equal(t, float64(3), body["document_count"])
	assert.Greater(t, body["chunk_count"], float64(0))

	status, body = ts.do(t, httptest.NewRequest(http.MethodGet, "/indexing/collections", nil))
	require.Equal(t, http.StatusOK, status)
	collections := body["collections"].([]any)
	require.Len(t, collections, 1)
	assert.Equal(t, "solar_manual", collections[0].(map[string]any)["name"])
	assert.Equal(t, float64(3), collections[0].(map[string]any)["vectors_count"])

	status, body = ts.do(t, httptest.NewRequest(http.MethodGet, "/indexing/collections/solar_manual", nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"vector_size": float64(5), "distance": "Cosine"}, body["config"])

	status, body = ts.do(t, httptest.NewRequest(http.MethodGet, "/files?page_number=1&page_size=10", nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["TotalRecords"])
	docs := body["doc_details"].([]any)
	require.Len(t, docs, 1)
	doc := docs[0].(map[string]any)
	assert.Equal(t, "Solar Manual.pdf", doc["filename"])
	assert.Equal(t, float64(len(manual)), doc["file_size"])

	stored := storedFiles(t, ts)
	require.Len(t, stored, 1)
	assert.True(t, strings.HasPrefix(stored[0].Name(), "Solar Manual_"))
	assert.True(t, strings.HasSuffix(stored[0].Name(), ".pdf"))
}

func TestUploadRejectsRenamedText(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, uploadRequest(t, "notes.pdf", []byte("just some plain text notes\n"), ""))
	require.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, strings.ToLower(body["detail"].(string)), "pdf")

	assert.Empty(t, storedFiles(t, ts))
	assert.Zero(t, ts.embedCalls)
	_, body = ts.do(t, httptest.NewRequest(http.MethodGet, "/files", nil))
	assert.Equal(t, float64(0), body["TotalRecords"])
	_, body = ts.do(t, httptest.NewRequest(http.MethodGet, "/indexing/collections", nil))
	assert.Empty(t, body["collections"])
}

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		query    string
		status   int
		detail   string
	}{
		{"wrong extension", "notes.txt", []byte("hello"), "", http.StatusBadRequest, "only PDF files"},
		{"too large", "big.pdf", append([]byte("%PDF-1.4\n"), make([]byte, 65*1024)...), "", http.StatusBadRequest, "exceeds"},
		{"empty", "empty.pdf", []byte{}, "", http.StatusBadRequest, "empty"},
		{"chunk size out of range", "a.pdf", manual, "chunk_size=50", http.StatusUnprocessableEntity, "chunk_size"},
		{"overlap out of range", "a.pdf", manual, "chunk_size=1000&chunk_overlap=600", http.StatusUnprocessableEntity, "chunk_overlap"},
		{"chunk size not a number", "a.pdf", manual, "chunk_size=big", http.StatusUnprocessableEntity, "integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			status, body := ts.do(t, uploadRequest(t, tt.filename, tt.data, tt.query))
			assert.Equal(t, tt.status, status, body)
			assert.Contains(t, body["detail"], tt.detail)
			assert.Empty(t, storedFiles(t, ts))
		})
	}
}

func TestUploadPastBodyLimitIsFileTooLarge(t *testing.T) {
	ts := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = ts.App().Listener(ln) }()
	t.Cleanup(func() { _ = ts.Shutdown(context.Background()) })

	// the body limit is rejected while the request is read, so only a real connection shows the response
	upload := uploadRequest(t, "huge.pdf", append([]byte("%PDF-1.4\n"), make([]byte, 2<<20)...), "")
	payload, err := io.ReadAll(upload.Body)
	require.NoError(t, err)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))

	_, err = fmt.Fprintf(conn, "POST /indexing/upload HTTP/1.1\r\nHost: localhost\r\nContent-Type: %s\r\nContent-Length: %d\r\n\r\n",
		upload.Header.Get("Content-Type"), len(payload))
	require.NoError(t, err)
	// the server may close the connection before the body is sent
	go func() { _, _ = conn.Write(payload) }()

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	assert.Equal(t, "file_too_large", body["kind"])
	assert.Contains(t, body["detail"], "MB limit")
	assert.Empty(t, storedFiles(t, ts))
}

func TestUploadUnreadableRemovesStoredCopy(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, uploadRequest(t, "broken.pdf", []byte("%PDF-1.4 not a real document"), ""))
	require.Equal(t, http.StatusBadRequest, status, body)
	assert.Equal(t, "unreadable_document", body["kind"])
	assert.Empty(t, storedFiles(t, ts))
}

func TestChatUnknownCollection(t *testing.T) {
	ts := newTestServer(t, "unused")

	status, body := ts.do(t, jsonRequest(http.MethodPost, "/chat", map[string]any{
		"query": "What is covered?", "collection_name": "missing",
	}))
	require.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body["detail"], "not found")
	assert.Zero(t, ts.embedCalls)
}

// noMatches knows every collection but never finds a relevant chunk.
type noMatches struct {
	rag.VectorIndex
}

func (noMatches) Search(context.Context, string, []float32, int) ([]models.Hit, error) {
	return nil, nil
}

func TestChatNoRelevantInformation(t *testing.T) {
	ts := newTestServer(t, "unused")
	status, body := ts.do(t, uploadRequest(t, "manual.pdf", manual, ""))
	require.Equal(t, http.StatusOK, status, body)
	ts.Retriever = rag.NewRetriever(noMatches{ts.Index}, ts.embedder, ts.generator, ts.Config.RAG)

	status, body = ts.do(t, jsonRequest(http.MethodPost, "/chat", map[string]any{
		"query": "What does the warranty cover?", "collection_name": "manual",
	}))
	require.Equal(t, http.StatusNotFound, status, body)
	assert.Equal(t, "no_answer", body["kind"])
	assert.Equal(t, models.NoAnswerText, body["detail"])
}

func TestChatRejectsTooManyResults(t *testing.T) {
	ts := newTestServer(t, "unused")
	ts.do(t, uploadRequest(t, "manual.pdf", manual, "chunk_size=200&chunk_overlap=20"))
	calls := ts.embedCalls

	for _, k := range []int{20, 0, -1} {
		status, body := ts.do(t, jsonRequest(http.MethodPost, "/chat", map[string]any{
			"query": "What is covered?", "collection_name": "manual", "max_results": k,
		}))
		assert.Equal(t, http.StatusUnprocessableEntity, status, "max_results=%d", k)
		assert.Equal(t, "invalid_parameter", body["kind"])
	}

	status, _ := ts.do(t, jsonRequest(http.MethodPost, "/chat", map[string]any{
		"query": strings.Repeat("q", 1001), "collection_name": "manual",
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, calls, ts.embedCalls)
}

func TestChatAnswers(t *testing.T) {
	ts := newTestServer(t, "The panels are covered for 25 years (page 2).")
	ts.do(t, uploadRequest(t, "manual.pdf", manual, "chunk_size=200&chunk_overlap=20"))

	status, body := ts.do(t, jsonRequest(http.MethodPost, "/chat", map[string]any{
		"query": "How long is the warranty on the panels?", "collection_name": "manual", "max_results": 2,
	}))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "The panels are covered for 25 years (page 2).", body["answer"])
	assert.Equal(t, "manual", body["collection_name"])
	assert.Equal(t, "gpt-4.1", body["model_used"])

	results := body["search_results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, float64(2), first["page_number"])
	assert.Equal(t, "manual.pdf", first["source"])
	assert.Contains(t, first["page_content"], "warranty")
}

func TestSampleQuestions(t *testing.T) {
	ts := newTestServer(t, "What do solar panels do?\nHow long is the warranty?\nWhere is energy stored?")
	ts.do(t, uploadRequest(t, "manual.pdf", manual, "chunk_size=200&chunk_overlap=20"))

	status, body := ts.do(t, httptest.NewRequest(http.MethodGet, "/chat/manual/sample?limit=2", nil))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, []any{"What do solar panels do?", "How long is the warranty?"}, body["questions"])

	status, _ = ts.do(t, httptest.NewRequest(http.MethodGet, "/chat/missing/sample", nil))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDeleteCollectionIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, uploadRequest(t, "manual.pdf", manual, "chunk_size=200&chunk_overlap=20"))

	for i := 0; i < 2; i++ {
		status, body := ts.do(t, httptest.NewRequest(http.MethodDelete, "/indexing/collections/manual", nil))
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Collection 'manual' successfully deleted", body["message"])
	}

	status, body := ts.do(t, httptest.NewRequest(http.MethodGet, "/indexing/collections/manual", nil))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "collection_not_found", body["kind"])
}

func TestFilesCRUD(t *testing.T) {
	ts := newTestServer(t)
	_, body := ts.do(t, uploadRequest(t, "manual.pdf", manual, "chunk_size=200&chunk_overlap=20"))
	id := body["document_id"].(string)

	status, body := ts.do(t, httptest.NewRequest(http.MethodGet, "/files/"+id, nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "manual", body["collection_name"])
	assert.Equal(t, float64(3), body["document_count"])

	status, _ = ts.do(t, httptest.NewRequest(http.MethodGet, "/files?page_size=101", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	status, _ = ts.do(t, httptest.NewRequest(http.MethodGet, "/files?page_number=0", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, body = ts.do(t, httptest.NewRequest(http.MethodDelete, "/files/"+id, nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Document "+id+" deleted successfully", body["message"])

	status, _ = ts.do(t, httptest.NewRequest(http.MethodGet, "/files/"+id, nil))
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = ts.do(t, httptest.NewRequest(http.MethodDelete, "/files/"+id, nil))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.0.0", body["version"])
}
