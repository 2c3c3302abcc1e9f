package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"ragchat/internal/chromemdb"
	"ragchat/internal/config"
	"ragchat/internal/db"
	"ragchat/internal/embedding"
	"ragchat/internal/llmservice"
	"ragchat/internal/qdrant"
	"ragchat/internal/rag"
)

// application holds the process-wide handles built once at startup and shared by every request.
type application struct {
	cfg       *config.Config
	db        *bun.DB
	documents *db.Store
	index     rag.VectorIndex
	chromem   *chromemdb.VectorDBManager
	indexer   *rag.Indexer
	retriever *rag.Retriever
}

func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	app := &application{cfg: cfg}

	bunDB, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	app.db = bunDB
	app.documents = db.NewStore(bunDB)
	if err := app.documents.InitDB(ctx); err != nil {
		app.Close()
		return nil, err
	}

	if err := app.openIndex(ctx); err != nil {
		app.Close()
		return nil, err
	}

	embedder, err := embedding.NewFromConfig(&cfg.EmbedLLM)
	if err != nil {
		app.Close()
		return nil, err
	}
	generator, err := llmservice.NewFromConfig(&cfg.InferenceLLM)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.indexer = rag.NewIndexer(app.index, embedder, cfg)
	app.retriever = rag.NewRetriever(app.index, embedder, generator, cfg.RAG)
	return app, nil
}

func (a *application) openIndex(ctx context.Context) error {
	vs := a.cfg.VectorStore
	switch vs.Type {
	case config.VectorChromem:
		m, err := chromemdb.NewVectorDBManager(vs.Chromem.Path, vs.Chromem.InMemory, vs.Chromem.Compress, a.cfg.RAG.EncryptionKey)
		if err != nil {
			return err
		}
		a.chromem = m
		a.index = m
	case config.VectorQdrant:
		a.index = qdrant.NewStorage(qdrant.Config{
			URL:      vs.Qdrant.URL,
			APIKey:   vs.Qdrant.APIKey,
			Distance: vs.Qdrant.Distance,
			Timeout:  vs.Timeout,
			Retries:  vs.Qdrant.Retries,
		})
	case config.VectorPgvector:
		if !db.IsPostgres(a.db) {
			return fmt.Errorf("pgvector needs a postgres database, got driver %q", a.cfg.Database.Driver)
		}
		idx := db.NewVectorIndex(a.db, vs.Timeout)
		if err := idx.InitDB(ctx); err != nil {
			return err
		}
		a.index = idx
	default:
		return fmt.Errorf("unknown vector store %q", vs.Type)
	}
	log.Info().Str("vector_store", vs.Type).Msg("Vector index ready")
	return nil
}

func (a *application) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
