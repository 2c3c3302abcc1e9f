package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/models"
)

// fakeQdrant keeps collections in memory and answers the handful of endpoints Storage uses.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	searches    []map[string]any
	apiKeys     []string
	describes   int
}

type fakeCollection struct {
	size       int
	distance   string
	vectorName string
	points     []map[string]any
}

func newFake(t *testing.T) (*fakeQdrant, *Storage) {
	t.Helper()
	f := &fakeQdrant{collections: map[string]*fakeCollection{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, NewStorage(Config{URL: srv.URL + "/", APIKey: "secret", Retries: 2, RetryBase: time.Millisecond})
}

func (f *fakeQdrant) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 1 && r.Method == http.MethodGet {
		var names []map[string]string
		for n := range f.collections {
			names = append(names, map[string]string{"name": n})
		}
		reply(w, map[string]any{"collections": names})
		return
	}

	name := parts[1]
	c, ok := f.collections[name]
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	switch {
	case len(parts) == 2 && r.Method == http.MethodPut:
		if ok {
			http.Error(w, `{"status":{"error":"already exists"}}`, http.StatusConflict)
			return
		}
		vec := body["vectors"].(map[string]any)
		f.collections[name] = &fakeCollection{size: int(vec["size"].(float64)), distance: vec["distance"].(string)}
		reply(w, true)
	case !ok:
		http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
	case len(parts) == 2 && r.Method == http.MethodGet:
		f.describes++
		var vectors any = map[string]any{"size": c.size, "distance": c.distance}
		if c.vectorName != "" {
			vectors = map[string]any{c.vectorName: vectors}
		}
		reply(w, map[string]any{
			"points_count": len(c.points),
			"config":       map[string]any{"params": map[string]any{"vectors": vectors}},
		})
	case len(parts) == 2 && r.Method == http.MethodDelete:
		delete(f.collections, name)
		reply(w, true)
	case parts[len(parts)-1] == "points" && r.Method == http.MethodPut:
		for _, p := range body["points"].([]any) {
			c.points = append(c.points, p.(map[string]any))
		}
		reply(w, map[string]any{"status": "completed"})
	case parts[len(parts)-1] == "search":
		f.searches = append(f.searches, body)
		// scores are returned worst first to check client-side ordering
		var out []map[string]any
		for i, p := range c.points {
			out = append(out, map[string]any{"id": p["id"], "score": float64(i) / 10, "payload": p["payload"]})
		}
		reply(w, out)
	case parts[len(parts)-1] == "scroll":
		limit := int(body["limit"].(float64))
		out := []map[string]any{}
		for i := 0; i < limit && i < len(c.points); i++ {
			out = append(out, map[string]any{"id": c.points[i]["id"], "payload": c.points[i]["payload"]})
		}
		reply(w, map[string]any{"points": out})
	default:
		http.NotFound(w, r)
	}
}

func reply(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
}

func points(n int) []models.Point {
	out := make([]models.Point, n)
	for i := range out {
		out[i] = models.Point{
			ID:     "chunk-" + string(rune('a'+i)),
			Vector: []float32{float32(i), 1, 0},
			Chunk:  models.Chunk{Content: "text " + string(rune('a'+i)), PageNumber: i + 1, Source: "doc.pdf", ChunkID: i + 1},
		}
	}
	return out
}

func TestUpsertCreatesCollection(t *testing.T) {
	ctx := context.Background()
	f, s := newFake(t)

	require.NoError(t, s.Upsert(ctx, "manual", points(3)))
	require.NoError(t, s.Upsert(ctx, "manual", points(2)))

	info, err := s.Describe(ctx, "manual")
	require.NoError(t, err)
	assert.Equal(t, models.CollectionInfo{Name: "manual", PointCount: 5, VectorSize: 3, Distance: models.DistanceCosine}, info)

	for _, k := range f.apiKeys {
		assert.Equal(t, "secret", k)
	}
	id, _ := f.collections["manual"].points[0]["id"].(string)
	assert.Len(t, id, 36)
}

func TestSearchSortsBestFirst(t *testing.T) {
	ctx := context.Background()
	f, s := newFake(t)
	require.NoError(t, s.Upsert(ctx, "manual", points(4)))

	hits, err := s.Search(ctx, "manual", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "text d", hits[0].Chunk.Content)
	assert.Equal(t, 4, hits[0].Chunk.PageNumber)
	assert.Equal(t, "doc.pdf", hits[0].Chunk.Source)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}

	require.Len(t, f.searches, 1)
	assert.Equal(t, float64(3), f.searches[0]["limit"])
	assert.Equal(t, true, f.searches[0]["with_payload"])
}

func TestSearchReusesDescribedLayout(t *testing.T) {
	ctx := context.Background()
	f, s := newFake(t)
	require.NoError(t, s.Upsert(ctx, "manual", points(2)))

	before := f.describes
	_, err := s.Describe(ctx, "manual")
	require.NoError(t, err)
	_, err = s.Search(ctx, "manual", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, before+1, f.describes)

	require.NoError(t, s.DeleteCollection(ctx, "manual"))
	_, err = s.Search(ctx, "manual", []float32{1, 0, 0}, 2)
	require.ErrorIs(t, err, models.ErrCollectionNotFound)
}

func TestNamedVectorCollection(t *testing.T) {
	ctx := context.Background()
	f, s := newFake(t)
	f.collections["legacy"] = &fakeCollection{size: 3, distance: models.DistanceDot, vectorName: "text"}

	info, err := s.Describe(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, 3, info.VectorSize)
	assert.Equal(t, models.DistanceDot, info.Distance)

	require.NoError(t, s.Upsert(ctx, "legacy", points(2)))
	vec, ok := f.collections["legacy"].points[0]["vector"].(map[string]any)
	require.True(t, ok, "point vector should be keyed by name")
	assert.Contains(t, vec, "text")

	hits, err := s.Search(ctx, "legacy", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Len(t, f.searches, 1)
	query, ok := f.searches[0]["vector"].(map[string]any)
	require.True(t, ok, "search vector should be a named vector")
	assert.Equal(t, "text", query["name"])
	assert.Equal(t, []any{float64(1), float64(0), float64(0)}, query["vector"])
}

func TestSearchMissingCollection(t *testing.T) {
	_, s := newFake(t)

	_, err := s.Search(context.Background(), "nope", []float32{1, 0, 0}, 3)
	require.ErrorIs(t, err, models.ErrCollectionNotFound)
	assert.Contains(t, err.Error(), "'nope'")
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f, s := newFake(t)
	require.NoError(t, s.Upsert(ctx, "manual", points(1)))

	require.NoError(t, s.DeleteCollection(ctx, "manual"))
	require.NoError(t, s.DeleteCollection(ctx, "manual"))
	assert.Empty(t, f.collections)

	// recreated after delete rather than trusting the stale cache
	require.NoError(t, s.Upsert(ctx, "manual", points(1)))
	assert.Contains(t, f.collections, "manual")
}

func TestListAndSample(t *testing.T) {
	ctx := context.Background()
	_, s := newFake(t)
	require.NoError(t, s.Upsert(ctx, "b", points(3)))
	require.NoError(t, s.Upsert(ctx, "a", points(1)))

	infos, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, 3, infos[1].PointCount)

	hits, err := s.Sample(ctx, "b", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "text a", hits[0].Chunk.Content)
}

func TestReadsRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		reply(w, map[string]any{"vectors_count": 7, "config": map[string]any{"params": map[string]any{
			"vectors": map[string]any{"": map[string]any{"size": 384, "distance": "Dot"}},
		}}})
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Retries: 2, RetryBase: time.Millisecond})
	info, err := s.Describe(context.Background(), "legacy")
	require.NoError(t, err)
	assert.Equal(t, models.CollectionInfo{Name: "legacy", PointCount: 7, VectorSize: 384, Distance: models.DistanceDot}, info)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Retries: 3, RetryBase: time.Millisecond})
	err := s.DeleteCollection(context.Background(), "x")
	require.ErrorIs(t, err, models.ErrVectorStore)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryDelayCapped(t *testing.T) {
	s := NewStorage(Config{URL: "http://localhost"})
	assert.Equal(t, 200*time.Millisecond, s.retryDelay(0))
	assert.Equal(t, 800*time.Millisecond, s.retryDelay(2))
	assert.Equal(t, 5*time.Second, s.retryDelay(10))
	assert.Equal(t, 5*time.Second, s.retryDelay(80))
}

func TestPointIDStable(t *testing.T) {
	id := "3f2504e0-4f89-11d3-9a0c-0305e82c3301"
	assert.Equal(t, id, pointID(id))
	assert.Equal(t, pointID("chunk-1"), pointID("chunk-1"))
	assert.NotEqual(t, pointID("chunk-1"), pointID("chunk-2"))
}
