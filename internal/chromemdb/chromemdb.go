package chromemdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"ragchat/internal/models"
)

const catalogFile = "catalog.yaml"

// catalogEntry records what chromem does not expose about a collection.
type catalogEntry struct {
	VectorSize int `yaml:"vector_size"`
}

// VectorDBManager is a vector index backed by chromem-go. Chromem only supports cosine similarity.
type VectorDBManager struct {
	db            *chromem.DB
	dbPath        string
	inMemory      bool
	compress      bool
	encryptionKey string

	mu      sync.RWMutex
	catalog map[string]catalogEntry
}

// NewVectorDBManager opens a persistent database at dbPath, or an in-memory one when inMemory is set.
func NewVectorDBManager(dbPath string, inMemory, compress bool, encryptionKey string) (*VectorDBManager, error) {
	m := &VectorDBManager{
		dbPath:        dbPath,
		inMemory:      inMemory,
		compress:      compress,
		encryptionKey: encryptionKey,
		catalog:       map[string]catalogEntry{},
	}

	if inMemory {
		m.db = chromem.NewDB()
		return m, nil
	}

	db, err := chromem.NewPersistentDB(dbPath, compress)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	m.db = db
	if err := m.loadCatalog(); err != nil {
		return nil, err
	}
	return m, nil
}

// Upsert adds points to collection, creating it on first write. Points with an existing ID replace it.
func (m *VectorDBManager) Upsert(ctx context.Context, collection string, points []models.Point) error {
	if len(points) == 0 {
		return nil
	}
	size := len(points[0].Vector)
	for _, p := range points {
		if len(p.Vector) != size || size == 0 {
			return fmt.Errorf("%w: point %s has dimension %d, want %d", models.ErrVectorStore, p.ID, len(p.Vector), size)
		}
	}

	c, err := m.collectionFor(collection, size)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		docs[i] = chromem.Document{
			ID:        p.ID,
			Content:   p.Chunk.Content,
			Metadata:  toMetadata(p.Chunk),
			Embedding: p.Vector,
		}
	}
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: failed to add documents: %v", models.ErrVectorStore, err)
	}
	log.Debug().Str("collection", collection).Int("points", len(points)).Msg("Upserted points")
	return nil
}

func (m *VectorDBManager) collectionFor(name string, size int) (*chromem.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.catalog[name]
	if ok && entry.VectorSize != size {
		return nil, fmt.Errorf("%w: collection %s holds %d-dimensional vectors, got %d", models.ErrVectorStore, name, entry.VectorSize, size)
	}

	c, err := m.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create/get collection: %v", models.ErrVectorStore, err)
	}
	if !ok {
		m.catalog[name] = catalogEntry{VectorSize: size}
		if err := m.saveCatalog(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Search returns up to k nearest points, best first.
func (m *VectorDBManager) Search(ctx context.Context, collection string, vector []float32, k int) ([]models.Hit, error) {
	c := m.db.GetCollection(collection, nil)
	if c == nil {
		return nil, models.CollectionNotFound(collection)
	}
	if size := m.vectorSize(collection); size != 0 && size != len(vector) {
		return nil, fmt.Errorf("%w: query has dimension %d, collection %s holds %d", models.ErrVectorStore, len(vector), collection, size)
	}
	return m.query(ctx, c, vector, k)
}

// Sample returns up to k points with no regard to relevance.
func (m *VectorDBManager) Sample(ctx context.Context, collection string, k int) ([]models.Hit, error) {
	c := m.db.GetCollection(collection, nil)
	if c == nil {
		return nil, models.CollectionNotFound(collection)
	}
	size := m.vectorSize(collection)
	if size == 0 {
		if c.Count() == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: unknown vector size for collection %s", models.ErrVectorStore, collection)
	}
	anchor := make([]float32, size)
	anchor[0] = 1
	return m.query(ctx, c, anchor, k)
}

func (m *VectorDBManager) query(ctx context.Context, c *chromem.Collection, vector []float32, k int) ([]models.Hit, error) {
	k = min(k, c.Count())
	if k <= 0 {
		return nil, nil
	}
	results, err := c.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query by similarity: %v", models.ErrVectorStore, err)
	}

	hits := make([]models.Hit, len(results))
	for i, r := range results {
		hits[i] = models.Hit{Chunk: fromMetadata(r.Content, r.Metadata), Score: r.Similarity}
	}
	models.SortHits(hits, models.DistanceCosine)
	return hits, nil
}

// DeleteCollection removes a collection. Deleting a missing collection is a no-op.
func (m *VectorDBManager) DeleteCollection(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("%w: failed to drop collection: %v", models.ErrVectorStore, err)
	}
	if _, ok := m.catalog[collection]; ok {
		delete(m.catalog, collection)
		return m.saveCatalog()
	}
	return nil
}

// Describe reports point count, vector size and metric for an existing collection.
func (m *VectorDBManager) Describe(_ context.Context, collection string) (models.CollectionInfo, error) {
	c := m.db.GetCollection(collection, nil)
	if c == nil {
		return models.CollectionInfo{}, models.CollectionNotFound(collection)
	}
	return m.describe(collection, c), nil
}

// List describes every collection, sorted by name.
func (m *VectorDBManager) List(_ context.Context) ([]models.CollectionInfo, error) {
	all := m.db.ListCollections()
	infos := make([]models.CollectionInfo, 0, len(all))
	for name, c := range all {
		infos = append(infos, m.describe(name, c))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (m *VectorDBManager) describe(name string, c *chromem.Collection) models.CollectionInfo {
	return models.CollectionInfo{
		Name:       name,
		PointCount: c.Count(),
		VectorSize: m.vectorSize(name),
		Distance:   models.DistanceCosine,
	}
}

func (m *VectorDBManager) vectorSize(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.catalog[name].VectorSize
}

// Export writes one collection to an encrypted file.
func (m *VectorDBManager) Export(_ context.Context, collection, filePath string) error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if m.db.GetCollection(collection, nil) == nil {
		return models.CollectionNotFound(collection)
	}

	log.Debug().Str("collection", collection).Str("file", filePath).Bool("compress", m.compress).Msg("Exporting collection")
	if err := m.db.ExportToFile(filePath, m.compress, m.encryptionKey, collection); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

func (m *VectorDBManager) loadCatalog() error {
	data, err := os.ReadFile(filepath.Join(m.dbPath, catalogFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	if err := yaml.Unmarshal(data, &m.catalog); err != nil {
		return fmt.Errorf("failed to parse catalog: %w", err)
	}
	if m.catalog == nil {
		m.catalog = map[string]catalogEntry{}
	}
	return nil
}

// saveCatalog must be called with mu held.
func (m *VectorDBManager) saveCatalog() error {
	if m.inMemory {
		return nil
	}
	data, err := yaml.Marshal(m.catalog)
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dbPath, catalogFile), data, 0o644); err != nil {
		return fmt.Errorf("%w: failed to write catalog: %v", models.ErrVectorStore, err)
	}
	return nil
}

func toMetadata(c models.Chunk) map[string]string {
	md := map[string]string{
		models.PayloadSource:  c.Source,
		models.PayloadChunkID: strconv.Itoa(c.ChunkID),
	}
	if c.PageNumber > 0 {
		md[models.PayloadPage] = strconv.Itoa(c.PageNumber)
	}
	return md
}

func fromMetadata(content string, md map[string]string) models.Chunk {
	c := models.Chunk{Content: content, Source: md[models.PayloadSource]}
	c.PageNumber, _ = strconv.Atoi(md[models.PayloadPage])
	c.ChunkID, _ = strconv.Atoi(md[models.PayloadChunkID])
	return c
}
