package llmservice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"ragchat/internal/config"
	"ragchat/internal/models"
)

var thinkTag = regexp.MustCompile(models.ThinkTag)

// Request is one system + user exchange.
type Request struct {
	System      string
	User        string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Generator calls a chat model. The model handle is built once and shared across requests.
type Generator struct {
	llm          llms.Model
	defaultModel string
	timeout      time.Duration
}

func New(llm llms.Model, defaultModel string, timeout time.Duration) *Generator {
	return &Generator{llm: llm, defaultModel: defaultModel, timeout: timeout}
}

// NewFromConfig builds a generator for the configured provider.
func NewFromConfig(cfg *config.LLMConfig) (*Generator, error) {
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating generator")

	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case config.ProviderOllama:
		llm, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", cfg.Provider, err)
	}
	return New(llm, cfg.Model, cfg.Timeout), nil
}

// DefaultModel is the model used when a request names none.
func (g *Generator) DefaultModel() string {
	return g.defaultModel
}

// GenerateContent sends the request and returns the first choice with any <think> block removed.
// Every failure is a *models.GenerationError labelled with op.
func (g *Generator) GenerateContent(ctx context.Context, op string, req Request) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = g.defaultModel
	}
	opts := []llms.CallOption{llms.WithModel(model), llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.User))

	log.Debug().Str("op", op).Str("model", model).Int("max_tokens", req.MaxTokens).Msg("Generating content")
	res, err := g.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", &models.GenerationError{Op: op, Err: err}
	}
	if res == nil || len(res.Choices) == 0 {
		return "", &models.GenerationError{Op: op, Err: errors.New("empty response from model")}
	}
	return strings.TrimSpace(thinkTag.ReplaceAllString(res.Choices[0].Content, "")), nil
}
