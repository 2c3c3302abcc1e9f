package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"ragchat/internal/helper"
	"ragchat/internal/models"
)

type documentRow struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID             string    `bun:"id,pk"`
	CollectionName string    `bun:"collection_name,notnull"`
	Filename       string    `bun:"filename,notnull"`
	DocumentCount  int       `bun:"document_count,notnull"`
	ChunkCount     int       `bun:"chunk_count,notnull"`
	FileSize       int64     `bun:"file_size"`
	UploadDate     time.Time `bun:"upload_date,notnull"`
	StoragePath    string    `bun:"storage_path"`
}

func (r *documentRow) toModel() models.Document {
	return models.Document{
		ID:             r.ID,
		CollectionName: r.CollectionName,
		Filename:       r.Filename,
		DocumentCount:  r.DocumentCount,
		ChunkCount:     r.ChunkCount,
		FileSize:       r.FileSize,
		UploadDate:     r.UploadDate,
		StoragePath:    r.StoragePath,
	}
}

// Store is the registry of uploaded documents.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InitDB(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*documentRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	_, err := s.db.NewCreateIndex().Model((*documentRow)(nil)).
		Index("documents_collection_name_idx").IfNotExists().
		Column("collection_name").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create documents index: %w", err)
	}
	return nil
}

// Insert stores doc, assigning an id and upload date when they are unset.
func (s *Store) Insert(ctx context.Context, doc models.Document) (models.Document, error) {
	if doc.ID == "" {
		id, err := helper.GenerateUUID()
		if err != nil {
			return models.Document{}, err
		}
		doc.ID = id
	}
	if doc.UploadDate.IsZero() {
		doc.UploadDate = time.Now().UTC()
	}
	row := &documentRow{
		ID:             doc.ID,
		CollectionName: doc.CollectionName,
		Filename:       doc.Filename,
		DocumentCount:  doc.DocumentCount,
		ChunkCount:     doc.ChunkCount,
		FileSize:       doc.FileSize,
		UploadDate:     doc.UploadDate,
		StoragePath:    doc.StoragePath,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return models.Document{}, fmt.Errorf("failed to insert document %s: %w", doc.Filename, err)
	}
	log.Info().Str("id", doc.ID).Str("filename", doc.Filename).Str("collection", doc.CollectionName).Msg("Inserted document")
	return doc, nil
}

// List returns one page of documents, newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]models.Document, error) {
	var rows []documentRow
	err := s.db.NewSelect().
		Model(&rows).
		OrderExpr("upload_date DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	docs := make([]models.Document, len(rows))
	for i := range rows {
		docs[i] = rows[i].toModel()
	}
	return docs, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*documentRow)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (models.Document, error) {
	row := new(documentRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Document{}, fmt.Errorf("%w: '%s'", models.ErrDocumentNotFound, id)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return row.toModel(), nil
}

// Delete removes the record and returns what was deleted.
func (s *Store) Delete(ctx context.Context, id string) (models.Document, error) {
	doc, err := s.GetByID(ctx, id)
	if err != nil {
		return models.Document{}, err
	}
	if _, err := s.db.NewDelete().Model((*documentRow)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
		return models.Document{}, fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	log.Info().Str("id", id).Msg("Deleted document")
	return doc, nil
}
