package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"ragchat/internal/config"
	"ragchat/internal/models"
)

const defaultBatchSize = 64

// Embedder turns text into vectors through a langchaingo embedding client.
// It is safe for concurrent use.
type Embedder struct {
	impl      *embeddings.EmbedderImpl
	batchSize int
	timeout   time.Duration
}

type Option func(*options)

type options struct {
	limiter *rate.Limiter
}

// WithRateLimit caps provider calls at rps requests per second. A non-positive rps means no limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		if rps <= 0 {
			return
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// New wraps an embedding client. A zero timeout leaves deadlines to the caller's context.
func New(client embeddings.EmbedderClient, batchSize int, timeout time.Duration, opts ...Option) (*Embedder, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.limiter != nil {
		client = limited(client, o.limiter)
	}
	impl, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(batchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &Embedder{impl: impl, batchSize: batchSize, timeout: timeout}, nil
}

// limited waits for the limiter before every provider call.
func limited(client embeddings.EmbedderClient, limiter *rate.Limiter) embeddings.EmbedderClient {
	return embeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		return client.CreateEmbedding(ctx, texts)
	})
}

// NewFromConfig builds an embedder for the configured provider.
func NewFromConfig(cfg *config.LLMConfig) (*Embedder, error) {
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch cfg.Provider {
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama: %w", err)
		}
		client = llm
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	return New(client, cfg.BatchSize, cfg.Timeout, WithRateLimit(cfg.RequestsPerSecond, cfg.Burst))
}

// EmbedDocuments returns one vector per text, in input order.
// A failing batch is reported as *models.EmbeddingError carrying its 0-based index.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	vectors := make([][]float32, 0, len(texts))
	for i, batch := range embeddings.BatchTexts(texts, e.batchSize) {
		out, err := e.impl.EmbedDocuments(ctx, batch)
		if err != nil {
			return nil, &models.EmbeddingError{Batch: i, Err: err}
		}
		if len(out) != len(batch) {
			return nil, &models.EmbeddingError{Batch: i, Err: fmt.Errorf("got %d vectors for %d texts", len(out), len(batch))}
		}
		vectors = append(vectors, out...)
	}

	for i, v := range vectors {
		if len(v) == 0 || len(v) != len(vectors[0]) {
			return nil, &models.EmbeddingError{Batch: i / e.batchSize, Err: fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), len(vectors[0]))}
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	v, err := e.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, &models.EmbeddingError{Batch: 0, Err: err}
	}
	if len(v) == 0 {
		return nil, &models.EmbeddingError{Batch: 0, Err: fmt.Errorf("empty query vector")}
	}
	return v, nil
}

func (e *Embedder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}
