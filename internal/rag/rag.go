// Package rag wires parsing, chunking, embedding, vector storage and generation into the
// indexing and question answering pipelines.
package rag

import (
	"context"

	"github.com/rs/zerolog/log"

	"ragchat/internal/llmservice"
	"ragchat/internal/models"
)

// VectorIndex is implemented by every vector backend. Search and Sample return hits best first.
type VectorIndex interface {
	Upsert(ctx context.Context, collection string, points []models.Point) error
	Search(ctx context.Context, collection string, vector []float32, k int) ([]models.Hit, error)
	Sample(ctx context.Context, collection string, k int) ([]models.Hit, error)
	DeleteCollection(ctx context.Context, collection string) error
	Describe(ctx context.Context, collection string) (models.CollectionInfo, error)
	List(ctx context.Context) ([]models.CollectionInfo, error)
}

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Generator interface {
	GenerateContent(ctx context.Context, op string, req llmservice.Request) (string, error)
	DefaultModel() string
}

type DocumentStore interface {
	Insert(ctx context.Context, doc models.Document) (models.Document, error)
}

// RecordDocument persists the registry record for a collection that has already been fully written.
// It is the only place a record is created after indexing. A failure leaves the collection without a
// record; that is logged and returned, and the collection is not rolled back.
func RecordDocument(ctx context.Context, store DocumentStore, doc models.Document) (models.Document, error) {
	saved, err := store.Insert(ctx, doc)
	if err != nil {
		log.Warn().Err(err).
			Str("collection", doc.CollectionName).
			Str("filename", doc.Filename).
			Int("chunks", doc.ChunkCount).
			Msg("Collection indexed but document record not saved, collection is orphaned")
		return models.Document{}, err
	}
	return saved, nil
}
