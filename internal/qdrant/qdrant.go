// Package qdrant is a vector index backed by the Qdrant REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ragchat/internal/models"
)

type Config struct {
	URL       string
	APIKey    string
	Distance  string
	Timeout   time.Duration
	Retries   int
	RetryBase time.Duration
}

// Storage talks to one Qdrant instance. Collections are created on first upsert.
// The vector layout of every collection seen is cached until it is deleted or reported missing.
type Storage struct {
	url       string
	apiKey    string
	distance  string
	retries   int
	retryBase time.Duration
	client    *http.Client

	known sync.Map
}

type statusError struct {
	method string
	path   string
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.path, e.status, e.body)
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	distance := cfg.Distance
	if distance == "" {
		distance = models.DistanceCosine
	}
	base := cfg.RetryBase
	if base == 0 {
		base = 200 * time.Millisecond
	}
	return &Storage{
		url:       strings.TrimRight(cfg.URL, "/"),
		apiKey:    cfg.APIKey,
		distance:  distance,
		retries:   cfg.Retries,
		retryBase: base,
		client:    &http.Client{Timeout: timeout},
	}
}

// Upsert writes points, creating the collection with the points' dimension if it is missing.
// Upserts are never retried.
func (s *Storage) Upsert(ctx context.Context, collection string, points []models.Point) error {
	if len(points) == 0 {
		return nil
	}
	layout, err := s.ensureCollection(ctx, collection, len(points[0].Vector))
	if err != nil {
		return err
	}

	body := make([]map[string]any, len(points))
	for i, p := range points {
		body[i] = map[string]any{
			"id":      pointID(p.ID),
			"vector":  layout.pointVector(p.Vector),
			"payload": toPayload(p.Chunk),
		}
	}
	if err := s.do(ctx, http.MethodPut, collectionPath(collection)+"/points?wait=true", map[string]any{"points": body}, nil, false); err != nil {
		return wrap(collection, err)
	}
	log.Debug().Str("collection", collection).Int("points", len(points)).Msg("Upserted points")
	return nil
}

func (s *Storage) ensureCollection(ctx context.Context, collection string, size int) (vectorLayout, error) {
	if v, ok := s.known.Load(collection); ok {
		return v.(vectorLayout), nil
	}
	_, layout, err := s.describe(ctx, collection)
	switch {
	case err == nil:
		return layout, nil
	case errors.Is(err, models.ErrCollectionNotFound):
		body := map[string]any{"vectors": map[string]any{"size": size, "distance": s.distance}}
		err := s.do(ctx, http.MethodPut, collectionPath(collection), body, nil, false)
		var se *statusError
		// a concurrent writer may have created it first
		if errors.As(err, &se) && (se.status == http.StatusConflict || strings.Contains(se.body, "already exists")) {
			err = nil
		}
		if err != nil {
			return vectorLayout{}, wrap(collection, err)
		}
		log.Info().Str("collection", collection).Int("vector_size", size).Str("distance", s.distance).Msg("Created collection")
		layout = vectorLayout{distance: s.distance}
		s.known.Store(collection, layout)
		return layout, nil
	default:
		return vectorLayout{}, err
	}
}

// layout returns the cached vector layout of collection, describing it on a miss.
func (s *Storage) layout(ctx context.Context, collection string) (vectorLayout, error) {
	if v, ok := s.known.Load(collection); ok {
		return v.(vectorLayout), nil
	}
	_, layout, err := s.describe(ctx, collection)
	return layout, err
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Search returns up to k nearest points, best first for the collection's metric.
// A collection already described by this Storage is not fetched again.
func (s *Storage) Search(ctx context.Context, collection string, vector []float32, k int) ([]models.Hit, error) {
	layout, err := s.layout(ctx, collection)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	var resp struct {
		Result []scoredPoint `json:"result"`
	}
	req := map[string]any{"vector": layout.queryVector(vector), "limit": k, "with_payload": true}
	if err := s.do(ctx, http.MethodPost, collectionPath(collection)+"/points/search", req, &resp, true); err != nil {
		err = wrap(collection, err)
		if errors.Is(err, models.ErrCollectionNotFound) {
			s.known.Delete(collection)
		}
		return nil, err
	}

	hits := make([]models.Hit, len(resp.Result))
	for i, r := range resp.Result {
		hits[i] = models.Hit{Chunk: fromPayload(r.Payload), Score: r.Score}
	}
	models.SortHits(hits, layout.distance)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Sample scrolls the first k points of a collection.
func (s *Storage) Sample(ctx context.Context, collection string, k int) ([]models.Hit, error) {
	var resp struct {
		Result struct {
			Points []scoredPoint `json:"points"`
		} `json:"result"`
	}
	req := map[string]any{"limit": k, "with_payload": true, "with_vector": false}
	if err := s.do(ctx, http.MethodPost, collectionPath(collection)+"/points/scroll", req, &resp, true); err != nil {
		return nil, wrap(collection, err)
	}
	hits := make([]models.Hit, len(resp.Result.Points))
	for i, p := range resp.Result.Points {
		hits[i] = models.Hit{Chunk: fromPayload(p.Payload)}
	}
	return hits, nil
}

// DeleteCollection drops a collection. A missing collection is not an error.
func (s *Storage) DeleteCollection(ctx context.Context, collection string) error {
	s.known.Delete(collection)
	err := s.do(ctx, http.MethodDelete, collectionPath(collection), nil, nil, false)
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusNotFound {
		return nil
	}
	return wrap(collection, err)
}

// List describes every collection, sorted by name.
func (s *Storage) List(ctx context.Context) ([]models.CollectionInfo, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, "/collections", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrVectorStore, err)
	}

	infos := make([]models.CollectionInfo, 0, len(resp.Result.Collections))
	for _, c := range resp.Result.Collections {
		info, err := s.Describe(ctx, c.Name)
		if errors.Is(err, models.ErrCollectionNotFound) {
			// deleted between the two calls
			continue
		}
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Describe fetches collection info and normalizes the shapes different Qdrant versions return.
func (s *Storage) Describe(ctx context.Context, collection string) (models.CollectionInfo, error) {
	info, _, err := s.describe(ctx, collection)
	return info, err
}

func (s *Storage) describe(ctx context.Context, collection string) (models.CollectionInfo, vectorLayout, error) {
	var resp struct {
		Result collectionInfo `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, collectionPath(collection), nil, &resp, true); err != nil {
		s.known.Delete(collection)
		return models.CollectionInfo{}, vectorLayout{}, wrap(collection, err)
	}
	info, layout, err := resp.Result.normalize(collection)
	if err != nil {
		return models.CollectionInfo{}, vectorLayout{}, err
	}
	s.known.Store(collection, layout)
	return info, layout, nil
}

func (s *Storage) do(ctx context.Context, method, path string, body, out any, retry bool) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	attempts := 1
	if retry {
		attempts += max(s.retries, 0)
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			log.Warn().Err(err).Str("path", path).Int("attempt", attempt).Msg("Retrying qdrant request")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryDelay(attempt - 1)):
			}
		}
		err = s.send(ctx, method, path, data, out)
		var se *statusError
		if err == nil || ctx.Err() != nil || errors.As(err, &se) && se.status < 500 {
			return err
		}
	}
	return err
}

func (s *Storage) send(ctx context.Context, method, path string, data []byte, out any) error {
	var reader io.Reader
	if data != nil {
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{method: method, path: path, status: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

func (s *Storage) retryDelay(attempt int) time.Duration {
	const maxDelay = 5 * time.Second
	d := s.retryBase
	for i := 0; i < attempt && d < maxDelay; i++ {
		d *= 2
	}
	return min(d, maxDelay)
}

func wrap(collection string, err error) error {
	if err == nil {
		return nil
	}
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusNotFound {
		return models.CollectionNotFound(collection)
	}
	return fmt.Errorf("%w: %v", models.ErrVectorStore, err)
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

// pointID returns id when it is already a UUID, otherwise a stable UUID derived from it.
func pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}
