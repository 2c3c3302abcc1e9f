package rag

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/helper"
	"ragchat/internal/models"
	"ragchat/internal/parser"
)

type IndexRequest struct {
	Data         []byte
	Filename     string
	Collection   string
	ChunkSize    int
	ChunkOverlap int
}

type Indexer struct {
	index      VectorIndex
	embedder   Embedder
	splitter   *chunker.Splitter
	workDir    string
	maxOverlap int
}

func NewIndexer(index VectorIndex, embedder Embedder, cfg *config.Config) *Indexer {
	return &Indexer{
		index:      index,
		embedder:   embedder,
		splitter:   chunker.New(chunker.WithSizeBounds(cfg.RAG.MinChunkSize, cfg.RAG.MaxChunkSize)),
		workDir:    cfg.Upload.WorkDir,
		maxOverlap: cfg.RAG.MaxChunkOverlap,
	}
}

// Index parses the file, chunks it, embeds every chunk and writes them to the resolved collection.
// The file only lives in the work directory for the duration of the call.
func (ix *Indexer) Index(ctx context.Context, req IndexRequest) (models.IndexResult, error) {
	collection, units, chunks, err := ix.prepare(req)
	if err != nil {
		return models.IndexResult{}, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return models.IndexResult{}, fmt.Errorf("failed to embed %s: %w", req.Filename, err)
	}

	points := make([]models.Point, len(chunks))
	for i, c := range chunks {
		id, err := helper.GenerateUUID()
		if err != nil {
			return models.IndexResult{}, err
		}
		points[i] = models.Point{ID: id, Vector: vectors[i], Chunk: c}
	}
	if err := ix.index.Upsert(ctx, collection, points); err != nil {
		return models.IndexResult{}, fmt.Errorf("failed to store chunks of %s: %w", req.Filename, err)
	}

	log.Info().
		Str("filename", req.Filename).
		Str("collection", collection).
		Int("units", units).
		Int("chunks", len(chunks)).
		Msg("Indexed document")
	return models.IndexResult{CollectionName: collection, UnitCount: units, ChunkCount: len(chunks)}, nil
}

// Preview runs everything up to embedding and returns the chunks that would be stored.
func (ix *Indexer) Preview(req IndexRequest) (string, []models.Chunk, error) {
	collection, _, chunks, err := ix.prepare(req)
	return collection, chunks, err
}

func (ix *Indexer) prepare(req IndexRequest) (string, int, []models.Chunk, error) {
	if req.ChunkOverlap > ix.maxOverlap {
		return "", 0, nil, fmt.Errorf("%w: chunk_overlap %d exceeds %d", models.ErrInvalidParameter, req.ChunkOverlap, ix.maxOverlap)
	}
	if len(req.Data) == 0 {
		return "", 0, nil, fmt.Errorf("%w: %s is empty", models.ErrEmptyDocument, req.Filename)
	}

	path, cleanup, err := helper.WriteTempFile(ix.workDir, req.Filename, req.Data)
	if err != nil {
		return "", 0, nil, err
	}
	defer cleanup()

	units, err := parser.Parse(path)
	if err != nil {
		return "", 0, nil, err
	}
	collection := helper.ResolveCollection(req.Collection, req.Filename)

	chunks, err := ix.splitter.Split(units, filepath.Base(req.Filename), req.ChunkSize, req.ChunkOverlap)
	if err != nil {
		return "", 0, nil, err
	}
	return collection, len(units), chunks, nil
}
