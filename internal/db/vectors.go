package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"ragchat/internal/models"
)

type collectionRow struct {
	bun.BaseModel `bun:"table:vector_collections,alias:vc"`

	Name       string `bun:"name,pk"`
	VectorSize int    `bun:"vector_size,notnull"`
	Distance   string `bun:"distance,notnull"`
}

type chunkRow struct {
	bun.BaseModel `bun:"table:vector_chunks,alias:ch"`

	ID         string          `bun:"id,pk"`
	Collection string          `bun:"collection,pk"`
	Content    string          `bun:"content,notnull"`
	PageNumber int             `bun:"page_number"`
	Source     string          `bun:"source"`
	ChunkID    int             `bun:"chunk_id"`
	Embedding  pgvector.Vector `bun:"embedding,type:vector,notnull"`

	Score float32 `bun:"score,scanonly"`
}

func (r *chunkRow) hit() models.Hit {
	return models.Hit{
		Chunk: models.Chunk{Content: r.Content, PageNumber: r.PageNumber, Source: r.Source, ChunkID: r.ChunkID},
		Score: r.Score,
	}
}

// VectorIndex stores chunk embeddings in postgres through pgvector. Scores are cosine similarity.
// Every call is bounded by timeout; zero leaves deadlines to the caller's context.
type VectorIndex struct {
	db      *bun.DB
	timeout time.Duration
}

func NewVectorIndex(db *bun.DB, timeout time.Duration) *VectorIndex {
	return &VectorIndex{db: db, timeout: timeout}
}

func (v *VectorIndex) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, v.timeout)
}

func (v *VectorIndex) InitDB(ctx context.Context) error {
	if _, err := v.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	for _, model := range []any{(*collectionRow)(nil), (*chunkRow)(nil)} {
		if _, err := v.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create vector tables: %w", err)
		}
	}
	return nil
}

func (v *VectorIndex) Upsert(ctx context.Context, collection string, points []models.Point) error {
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()

	if len(points) == 0 {
		return nil
	}
	size := len(points[0].Vector)
	rows := make([]chunkRow, len(points))
	for i, p := range points {
		if len(p.Vector) != size {
			return fmt.Errorf("%w: point %s has dimension %d, expected %d", models.ErrVectorStore, p.ID, len(p.Vector), size)
		}
		rows[i] = chunkRow{
			ID:         p.ID,
			Collection: collection,
			Content:    p.Chunk.Content,
			PageNumber: p.Chunk.PageNumber,
			Source:     p.Chunk.Source,
			ChunkID:    p.Chunk.ChunkID,
			Embedding:  pgvector.NewVector(p.Vector),
		}
	}

	err := v.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		coll := &collectionRow{Name: collection, VectorSize: size, Distance: models.DistanceCosine}
		if _, err := tx.NewInsert().Model(coll).On("CONFLICT (name) DO NOTHING").Exec(ctx); err != nil {
			return err
		}
		if err := tx.NewSelect().Model(coll).WherePK().Scan(ctx); err != nil {
			return err
		}
		if coll.VectorSize != size {
			return fmt.Errorf("collection %s holds %d-dimensional vectors, got %d", collection, coll.VectorSize, size)
		}
		_, err := tx.NewInsert().Model(&rows).
			On("CONFLICT (id, collection) DO UPDATE").
			Set("content = EXCLUDED.content").
			Set("page_number = EXCLUDED.page_number").
			Set("source = EXCLUDED.source").
			Set("chunk_id = EXCLUDED.chunk_id").
			Set("embedding = EXCLUDED.embedding").
			Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrVectorStore, err)
	}
	log.Debug().Str("collection", collection).Int("points", len(points)).Msg("Upserted points")
	return nil
}

func (v *VectorIndex) searchQuery(collection string, vector []float32, k int, rows *[]chunkRow) *bun.SelectQuery {
	vec := pgvector.NewVector(vector)
	return v.db.NewSelect().
		Model(rows).
		Column("id", "content", "page_number", "source", "chunk_id").
		ColumnExpr("1 - (embedding <=> ?) AS score", vec).
		Where("collection = ?", collection).
		OrderExpr("embedding <=> ?", vec).
		Limit(k)
}

func (v *VectorIndex) Search(ctx context.Context, collection string, vector []float32, k int) ([]models.Hit, error) {
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()

	info, err := v.lookup(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != info.VectorSize {
		return nil, fmt.Errorf("%w: query has dimension %d, collection %s expects %d", models.ErrVectorStore, len(vector), collection, info.VectorSize)
	}
	if k <= 0 {
		return nil, nil
	}

	var rows []chunkRow
	if err := v.searchQuery(collection, vector, k, &rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrVectorStore, err)
	}
	hits := make([]models.Hit, len(rows))
	for i := range rows {
		hits[i] = rows[i].hit()
	}
	models.SortHits(hits, info.Distance)
	return hits, nil
}

// Sample returns the first k chunks of a collection in document order.
func (v *VectorIndex) Sample(ctx context.Context, collection string, k int) ([]models.Hit, error) {
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()

	var rows []chunkRow
	err := v.db.NewSelect().
		Model(&rows).
		Column("id", "content", "page_number", "source", "chunk_id").
		Where("collection = ?", collection).
		OrderExpr("chunk_id ASC").
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrVectorStore, err)
	}
	hits := make([]models.Hit, len(rows))
	for i := range rows {
		hits[i] = rows[i].hit()
	}
	return hits, nil
}

func (v *VectorIndex) DeleteCollection(ctx context.Context, collection string) error {
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()

	err := v.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*chunkRow)(nil)).Where("collection = ?", collection).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*collectionRow)(nil)).Where("name = ?", collection).Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrVectorStore, err)
	}
	return nil
}

func (v *VectorIndex) Describe(ctx context.Context, collection string) (models.CollectionInfo, error) {
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()
	return v.lookup(ctx, collection)
}

func (v *VectorIndex) lookup(ctx context.Context, collection string) (models.CollectionInfo, error) {
	coll := &collectionRow{Name: collection}
	err := v.db.NewSelect().Model(coll).WherePK().Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CollectionInfo{}, models.CollectionNotFound(collection)
	}
	if err != nil {
		return models.CollectionInfo{}, fmt.Errorf("%w: %w", models.ErrVectorStore, err)
	}
	return v.describe(ctx, coll)
}

func (v *VectorIndex) describe(ctx context.Context, coll *collectionRow) (models.CollectionInfo, error) {
	n, err := v.db.NewSelect().Model((*chunkRow)(nil)).Where("collection = ?", coll.Name).Count(ctx)
	if err != nil {
		return models.CollectionInfo{}, fmt.Errorf("%w: %w", models.ErrVectorStore, err)
	}
	return models.CollectionInfo{Name: coll.Name, PointCount: n, VectorSize: coll.VectorSize, Distance: coll.Distance}, nil
}

func (v *VectorIndex) List(ctx context.Context) ([]models.CollectionInfo, error) {
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()

	var colls []collectionRow
	if err := v.db.NewSelect().Model(&colls).OrderExpr("name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrVectorStore, err)
	}
	infos := make([]models.CollectionInfo, 0, len(colls))
	for i := range colls {
		info, err := v.describe(ctx, &colls[i])
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}
