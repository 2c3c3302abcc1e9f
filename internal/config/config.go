package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	VectorChromem  = "chromem"
	VectorQdrant   = "qdrant"
	VectorPgvector = "pgvector"

	DriverPgdriver = "pgdriver"
	DriverPq       = "pq"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Server       ServerConfig      `yaml:"server"`
	Upload       UploadConfig      `yaml:"upload"`
	RAG          RAGConfig         `yaml:"rag"`
	EmbedLLM     LLMConfig         `yaml:"embed_llm"`
	InferenceLLM LLMConfig         `yaml:"inference_llm"`
	VectorStore  VectorStoreConfig `yaml:"vector_store"`
	Database     DatabaseConfig    `yaml:"database"`
	Log          LogConfig         `yaml:"log"`
}

type ServerConfig struct {
	Addr    string `yaml:"addr"`
	Version string `yaml:"version"`
}

type UploadConfig struct {
	MaxSizeBytes      int64    `yaml:"max_size_bytes"`
	WorkDir           string   `yaml:"work_dir"`
	StorageDir        string   `yaml:"storage_dir"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// RAGConfig holds chunking, retrieval and generation knobs.
type RAGConfig struct {
	ChunkSize       int     `yaml:"chunk_size"`
	ChunkOverlap    int     `yaml:"chunk_overlap"`
	MinChunkSize    int     `yaml:"min_chunk_size"`
	MaxChunkSize    int     `yaml:"max_chunk_size"`
	MaxChunkOverlap int     `yaml:"max_chunk_overlap"`
	DefaultK        int     `yaml:"default_k"`
	MaxK            int     `yaml:"max_k"`
	MaxQueryLength  int     `yaml:"max_query_length"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
	SamplePrefix    int     `yaml:"sample_prefix"`
	SampleQuestions int     `yaml:"sample_questions"`
	SampleMaxTokens int     `yaml:"sample_max_tokens"`
	EncryptionKey   string  `yaml:"encryption_key"`
}

type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	BaseURL   string        `yaml:"base_url"`
	Key       string        `yaml:"key"`
	Model     string        `yaml:"model"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`

	// RequestsPerSecond limits embedding calls; 0 disables the limit.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type VectorStoreConfig struct {
	Type    string        `yaml:"type"`
	Timeout time.Duration `yaml:"timeout"`
	Chromem ChromemConfig `yaml:"chromem"`
	Qdrant  QdrantConfig  `yaml:"qdrant"`
}

type ChromemConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
	Compress bool   `yaml:"compress"`
}

type QdrantConfig struct {
	URL      string `yaml:"url"`
	APIKey   string `yaml:"api_key"`
	Distance string `yaml:"distance"`
	Retries  int    `yaml:"retries"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// LoadConfig reads the YAML file at path, applies .env and environment overrides and fills defaults.
// A missing file is not an error; the defaults plus environment are used instead.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration holding only defaults. The environment is not read.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.EmbedLLM.Key == "" {
			cfg.EmbedLLM.Key = v
		}
		if cfg.InferenceLLM.Key == "" {
			cfg.InferenceLLM.Key = v
		}
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		cfg.VectorStore.Qdrant.URL = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		cfg.VectorStore.Qdrant.APIKey = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("RAGCHAT_UPLOAD_DIR"); v != "" {
		cfg.Upload.WorkDir = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = "1.0.0"
	}

	if cfg.Upload.MaxSizeBytes == 0 {
		cfg.Upload.MaxSizeBytes = 5 * 1024 * 1024
	}
	if cfg.Upload.WorkDir == "" {
		cfg.Upload.WorkDir = os.TempDir()
	}
	if cfg.Upload.StorageDir == "" {
		cfg.Upload.StorageDir = "./storage"
	}
	if len(cfg.Upload.AllowedExtensions) == 0 {
		cfg.Upload.AllowedExtensions = []string{".pdf"}
	}

	r := &cfg.RAG
	if r.MinChunkSize == 0 {
		r.MinChunkSize = 100
	}
	if r.MaxChunkSize == 0 {
		r.MaxChunkSize = 2000
	}
	if r.MaxChunkOverlap == 0 {
		r.MaxChunkOverlap = 500
	}
	if r.ChunkSize == 0 {
		r.ChunkSize = 1000
	}
	if r.ChunkOverlap == 0 {
		r.ChunkOverlap = 400
	}
	if r.DefaultK == 0 {
		r.DefaultK = 4
	}
	if r.MaxK == 0 {
		r.MaxK = 10
	}
	if r.MaxQueryLength == 0 {
		r.MaxQueryLength = 1000
	}
	if r.Temperature == 0 {
		r.Temperature = 0.7
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = 800
	}
	if r.SamplePrefix == 0 {
		r.SamplePrefix = 500
	}
	if r.SampleQuestions == 0 {
		r.SampleQuestions = 3
	}
	if r.SampleMaxTokens == 0 {
		r.SampleMaxTokens = 200
	}

	applyLLMDefaults(&cfg.EmbedLLM, "text-embedding-3-small", "nomic-embed-text")
	applyLLMDefaults(&cfg.InferenceLLM, "gpt-4.1", "llama3.2")
	if cfg.EmbedLLM.BatchSize == 0 {
		cfg.EmbedLLM.BatchSize = 64
	}

	v := &cfg.VectorStore
	if v.Type == "" {
		v.Type = VectorChromem
	}
	if v.Timeout == 0 {
		v.Timeout = 30 * time.Second
	}
	if v.Chromem.Path == "" {
		v.Chromem.Path = "./chromemdb"
	}
	if v.Qdrant.Distance == "" {
		v.Qdrant.Distance = "Cosine"
	}
	if v.Qdrant.Retries == 0 {
		v.Qdrant.Retries = 3
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
	}
	if cfg.Database.Driver == DriverSQLite && cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:ragchat.db?cache=shared"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
}

func applyLLMDefaults(c *LLMConfig, openAIModel, ollamaModel string) {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Model == "" {
		if c.Provider == ProviderOllama {
			c.Model = ollamaModel
		} else {
			c.Model = openAIModel
		}
	}
	if c.Provider == ProviderOllama && c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// Validate reports configuration that makes the service unable to start.
func (c *Config) Validate() error {
	var errs []error
	for _, l := range []struct {
		name string
		cfg  LLMConfig
	}{{"embed_llm", c.EmbedLLM}, {"inference_llm", c.InferenceLLM}} {
		switch l.cfg.Provider {
		case ProviderOpenAI:
			if l.cfg.Key == "" {
				errs = append(errs, fmt.Errorf("%s: api key is required (set OPENAI_API_KEY)", l.name))
			}
		case ProviderOllama:
		default:
			errs = append(errs, fmt.Errorf("%s: unknown provider %q", l.name, l.cfg.Provider))
		}
	}

	switch c.VectorStore.Type {
	case VectorChromem:
	case VectorQdrant:
		if c.VectorStore.Qdrant.URL == "" {
			errs = append(errs, errors.New("vector_store: qdrant url is required (set QDRANT_URL)"))
		}
	case VectorPgvector:
		if c.Database.Driver == DriverSQLite {
			errs = append(errs, errors.New("vector_store: pgvector needs a postgres database driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("vector_store: unknown type %q", c.VectorStore.Type))
	}

	switch c.Database.Driver {
	case DriverPgdriver, DriverPq, DriverSQLite:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database: dsn is required (set DATABASE_DSN)"))
		}
	default:
		errs = append(errs, fmt.Errorf("database: unknown driver %q", c.Database.Driver))
	}

	r := c.RAG
	if r.MinChunkSize <= 0 || r.MinChunkSize > r.MaxChunkSize {
		errs = append(errs, fmt.Errorf("rag: invalid chunk size bounds [%d,%d]", r.MinChunkSize, r.MaxChunkSize))
	}
	if r.ChunkSize < r.MinChunkSize || r.ChunkSize > r.MaxChunkSize {
		errs = append(errs, fmt.Errorf("rag: chunk_size %d outside [%d,%d]", r.ChunkSize, r.MinChunkSize, r.MaxChunkSize))
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		errs = append(errs, fmt.Errorf("rag: chunk_overlap %d must be in [0,%d)", r.ChunkOverlap, r.ChunkSize))
	}
	if c.Upload.MaxSizeBytes <= 0 {
		errs = append(errs, errors.New("upload: max_size_bytes must be positive"))
	}
	if c.Upload.WorkDir == "" {
		errs = append(errs, errors.New("upload: work_dir is required"))
	}
	return errors.Join(errs...)
}
