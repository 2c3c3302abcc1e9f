package rag

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"ragchat/internal/config"
	"ragchat/internal/llmservice"
	"ragchat/internal/models"
)

const sampleProbeSize = 2

type AnswerRequest struct {
	Query      string
	Collection string
	K          int
	Model      string
}

type Retriever struct {
	index     VectorIndex
	embedder  Embedder
	generator Generator
	cfg       config.RAGConfig
}

func NewRetriever(index VectorIndex, embedder Embedder, generator Generator, cfg config.RAGConfig) *Retriever {
	return &Retriever{index: index, embedder: embedder, generator: generator, cfg: cfg}
}

// Validate checks the request and fills in the default k.
func (r *Retriever) Validate(req *AnswerRequest) error {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return fmt.Errorf("%w: query must not be empty", models.ErrInvalidParameter)
	}
	if n := utf8.RuneCountInString(req.Query); n > r.cfg.MaxQueryLength {
		return fmt.Errorf("%w: query is %d characters, at most %d allowed", models.ErrInvalidParameter, n, r.cfg.MaxQueryLength)
	}
	if req.Collection == "" {
		return fmt.Errorf("%w: collection_name is required", models.ErrInvalidParameter)
	}
	if req.K == 0 {
		req.K = r.cfg.DefaultK
	}
	if req.K < 1 || req.K > r.cfg.MaxK {
		return fmt.Errorf("%w: max_results %d outside [1,%d]", models.ErrInvalidParameter, req.K, r.cfg.MaxK)
	}
	return nil
}

// Answer retrieves the k best chunks for the query and asks the model to answer from them only.
// The collection is checked before any embedding or generation call is made.
func (r *Retriever) Answer(ctx context.Context, req AnswerRequest) (models.Answer, error) {
	if err := r.Validate(&req); err != nil {
		return models.Answer{}, err
	}
	if req.Model == "" {
		req.Model = r.generator.DefaultModel()
	}
	answer := models.Answer{Query: req.Query, Collection: req.Collection, Model: req.Model}

	if _, err := r.index.Describe(ctx, req.Collection); err != nil {
		return models.Answer{}, err
	}

	vector, err := r.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return models.Answer{}, err
	}
	hits, err := r.index.Search(ctx, req.Collection, vector, req.K)
	if err != nil {
		return models.Answer{}, err
	}
	if len(hits) == 0 {
		log.Info().Str("collection", req.Collection).Msg("No chunks matched query")
		answer.NoAnswer = true
		return answer, nil
	}

	text, err := r.generator.GenerateContent(ctx, "answer query", llmservice.Request{
		System:      fmt.Sprintf(models.SystemPromptTemplate, BuildContext(hits)),
		User:        req.Query,
		Model:       req.Model,
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
	})
	if err != nil {
		return models.Answer{}, err
	}

	answer.Text = text
	answer.Citations = hits
	log.Info().Str("collection", req.Collection).Int("citations", len(hits)).Str("model", req.Model).Msg("Answered query")
	return answer, nil
}

// BuildContext joins hit texts in the given order, each prefixed with its page and source when known.
func BuildContext(hits []models.Hit) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		var tags []string
		if h.Chunk.PageNumber > 0 {
			tags = append(tags, fmt.Sprintf("page %d", h.Chunk.PageNumber))
		}
		if h.Chunk.Source != "" {
			tags = append(tags, "source: "+h.Chunk.Source)
		}
		if len(tags) == 0 {
			parts[i] = h.Chunk.Content
			continue
		}
		parts[i] = "[" + strings.Join(tags, ", ") + "]\n" + h.Chunk.Content
	}
	return strings.Join(parts, models.ContextSeparator)
}

// SampleQuestions asks the model for questions a reader could ask about the start of a collection.
// An empty collection yields no questions.
func (r *Retriever) SampleQuestions(ctx context.Context, collection string, limit int) ([]string, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be positive", models.ErrInvalidParameter)
	}
	if _, err := r.index.Describe(ctx, collection); err != nil {
		return nil, err
	}

	hits, err := r.index.Sample(ctx, collection, sampleProbeSize)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []string{}, nil
	}

	excerpt := []rune(hits[0].Chunk.Content)
	if len(excerpt) > r.cfg.SamplePrefix {
		excerpt = excerpt[:r.cfg.SamplePrefix]
	}
	text, err := r.generator.GenerateContent(ctx, "generate sample questions", llmservice.Request{
		User:        fmt.Sprintf(models.SampleQuestionsPromptTemplate, r.cfg.SampleQuestions, string(excerpt)),
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.SampleMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	questions := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*"))
		if line == "" {
			continue
		}
		questions = append(questions, line)
	}
	if len(questions) > limit {
		questions = questions[:limit]
	}
	return questions, nil
}
