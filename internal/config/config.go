package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP frontend.
type ServerConfig struct {
	Addr               string   `yaml:"addr" validate:"required"`
	ReadTimeoutSecs    int      `yaml:"read_timeout_secs" validate:"gte=0"`
	WriteTimeoutSecs   int      `yaml:"write_timeout_secs" validate:"gte=0"`
	ShutdownSecs       int      `yaml:"shutdown_secs" validate:"gte=0"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" validate:"gte=0"`
	AllowedOrigins     []string `yaml:"allowed_origins,omitempty"`
}

// CorpusConfig locates the passage table.
type CorpusConfig struct {
	Path       string `yaml:"path" validate:"required"`
	TextColumn string `yaml:"text_column" validate:"required"`
	Sheet      string `yaml:"sheet,omitempty"`
}

// EmbeddingsConfig locates the precomputed embedding store.
type EmbeddingsConfig struct {
	Path   string `yaml:"path" validate:"required"`
	Format string `yaml:"format,omitempty" validate:"omitempty,oneof=json bolt"`
}

// MeanPoolConfig configures the local mean-pooling encoder.
type MeanPoolConfig struct {
	Dimension int    `yaml:"dimension" validate:"gt=0"`
	MaxTokens int    `yaml:"max_tokens" validate:"gte=2"`
	Seed      uint64 `yaml:"seed"`
	VocabPath string `yaml:"vocab_path,omitempty"`
	// Hashed opts into seeded random token vectors when no vocab_path is
	// given. Retrieval quality is lexical only; meant for tests and offline use.
	Hashed bool `yaml:"hashed,omitempty"`
}

// OpenAIEncoderConfig holds configuration for an OpenAI-compatible embeddings endpoint.
type OpenAIEncoderConfig struct {
	BaseURL     string `yaml:"base_url" validate:"required,url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model" validate:"required"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"gte=0"`
	Dimension   int    `yaml:"dimension" validate:"gte=0"`
}

// EncoderConfig selects and configures the text encoder implementation.
type EncoderConfig struct {
	Type     string               `yaml:"type" validate:"oneof=meanpool openai"`
	MeanPool *MeanPoolConfig      `yaml:"meanpool,omitempty"`
	OpenAI   *OpenAIEncoderConfig `yaml:"openai,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant-backed index.
type QdrantConfig struct {
	URL         string `yaml:"url" validate:"required,url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection" validate:"required"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"gte=0"`
	BatchSize   int    `yaml:"batch_size" validate:"gte=0"`
}

// IndexConfig selects the nearest-neighbor backend.
type IndexConfig struct {
	Type   string        `yaml:"type" validate:"oneof=flat qdrant"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// RetrievalConfig controls how much context reaches the generator.
type RetrievalConfig struct {
	TopK        int `yaml:"top_k" validate:"gt=0"`
	TokenBudget int `yaml:"token_budget" validate:"gte=0"`
}

// GeneratorConfig configures the chat-completions client.
type GeneratorConfig struct {
	BaseURL      string `yaml:"base_url" validate:"required,url"`
	APIKeyEnv    string `yaml:"api_key_env" validate:"required"`
	Model        string `yaml:"model" validate:"required"`
	MaxTokens    int    `yaml:"max_tokens" validate:"gt=0"`
	TimeoutSecs  int    `yaml:"timeout_secs" validate:"gt=0"`
	MaxRetries   int    `yaml:"max_retries" validate:"gte=0,lte=10"`
	RetryDelayMs int    `yaml:"retry_delay_ms" validate:"gte=0"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
	File   string `yaml:"file,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Encoder    EncoderConfig    `yaml:"encoder"`
	Index      IndexConfig      `yaml:"index"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	presetExplicitZeros(&cfg)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./ragqa.yaml first, then ~/.config/ragqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "ragqa.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns a fresh copy of the built-in configuration.
func Default() *AppConfig { return defaultConfig() }

var validate = validator.New()

// ValidationError lists every offending field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return "invalid config: " + strings.Join(parts, "; ")
}

// Validate checks field constraints and the presence of the sub-config the
// selected implementation types need.
func (c *AppConfig) Validate() error {
	fields := map[string]string{}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields[fe.Namespace()] = fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
	}
	if c.Encoder.Type == "openai" && c.Encoder.OpenAI == nil {
		fields["AppConfig.Encoder.OpenAI"] = "encoder.openai section is required when encoder.type is openai"
	}
	if c.Encoder.Type == "meanpool" && c.Encoder.MeanPool == nil {
		fields["AppConfig.Encoder.MeanPool"] = "encoder.meanpool section is required when encoder.type is meanpool"
	}
	if mp := c.Encoder.MeanPool; c.Encoder.Type == "meanpool" && mp != nil && mp.VocabPath == "" && !mp.Hashed {
		fields["AppConfig.Encoder.MeanPool.VocabPath"] = "encoder.meanpool needs vocab_path, or hashed: true for untrained vectors"
	}
	if c.Index.Type == "qdrant" && c.Index.Qdrant == nil {
		fields["AppConfig.Index.Qdrant"] = "index.qdrant section is required when index.type is qdrant"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// APIKey returns the generator credential from the environment.
func (g GeneratorConfig) APIKey() (string, error) {
	key := strings.TrimSpace(os.Getenv(g.APIKeyEnv))
	if key == "" {
		return "", fmt.Errorf("%s not found in environment; set it or add it to .env", g.APIKeyEnv)
	}
	return key, nil
}

// Timeout is the per-call generation deadline.
func (g GeneratorConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSecs) * time.Second
}

// RetryDelay is the base delay between generation retries.
func (g GeneratorConfig) RetryDelay() time.Duration {
	return time.Duration(g.RetryDelayMs) * time.Millisecond
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// ReadTimeout, WriteTimeout, ShutdownTimeout and RequestTimeout convert the
// integer seconds fields.
func (s ServerConfig) ReadTimeout() time.Duration     { return secs(s.ReadTimeoutSecs) }
func (s ServerConfig) WriteTimeout() time.Duration    { return secs(s.WriteTimeoutSecs) }
func (s ServerConfig) ShutdownTimeout() time.Duration { return secs(s.ShutdownSecs) }
func (s ServerConfig) RequestTimeout() time.Duration  { return secs(s.RequestTimeoutSecs) }

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Encoder: EncoderConfig{Type: "openai"},
		Index:   IndexConfig{Type: "flat"},
	}
	presetExplicitZeros(cfg)
	applyConfigDefaults(cfg)
	return cfg
}

// presetExplicitZeros sets defaults for fields where zero is a meaningful
// value, before the file is decoded over them.
func presetExplicitZeros(cfg *AppConfig) {
	cfg.Retrieval.TokenBudget = 1536
	cfg.Generator.MaxRetries = 2
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":5000"
	}
	if cfg.Server.ReadTimeoutSecs == 0 {
		cfg.Server.ReadTimeoutSecs = 15
	}
	if cfg.Server.WriteTimeoutSecs == 0 {
		cfg.Server.WriteTimeoutSecs = 90
	}
	if cfg.Server.ShutdownSecs == 0 {
		cfg.Server.ShutdownSecs = 10
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 60
	}

	if cfg.Corpus.Path == "" {
		cfg.Corpus.Path = filepath.Join("knowledge_base", "corpus.csv")
	}
	if cfg.Corpus.TextColumn == "" {
		cfg.Corpus.TextColumn = "Text"
	}
	if cfg.Embeddings.Path == "" {
		cfg.Embeddings.Path = filepath.Join("knowledge_base", "embeddings.json")
	}

	if cfg.Encoder.Type == "" {
		cfg.Encoder.Type = "openai"
	}
	if cfg.Encoder.Type == "meanpool" {
		if cfg.Encoder.MeanPool == nil {
			cfg.Encoder.MeanPool = &MeanPoolConfig{}
		}
		if cfg.Encoder.MeanPool.Dimension == 0 {
			cfg.Encoder.MeanPool.Dimension = 384
		}
		if cfg.Encoder.MeanPool.MaxTokens == 0 {
			cfg.Encoder.MeanPool.MaxTokens = 512
		}
	}
	if cfg.Encoder.Type == "openai" {
		if cfg.Encoder.OpenAI == nil {
			cfg.Encoder.OpenAI = &OpenAIEncoderConfig{}
		}
		// Ollama serves sentence-transformers/all-MiniLM-L6-v2 as all-minilm.
		if cfg.Encoder.OpenAI.BaseURL == "" {
			cfg.Encoder.OpenAI.BaseURL = "http://localhost:11434/v1"
		}
		if cfg.Encoder.OpenAI.Model == "" {
			cfg.Encoder.OpenAI.Model = "all-minilm"
		}
		if cfg.Encoder.OpenAI.TimeoutSecs == 0 {
			cfg.Encoder.OpenAI.TimeoutSecs = 30
		}
	}

	if cfg.Index.Type == "" {
		cfg.Index.Type = "flat"
	}
	if cfg.Index.Type == "qdrant" && cfg.Index.Qdrant != nil {
		if cfg.Index.Qdrant.TimeoutSecs == 0 {
			cfg.Index.Qdrant.TimeoutSecs = 15
		}
		if cfg.Index.Qdrant.BatchSize == 0 {
			cfg.Index.Qdrant.BatchSize = 256
		}
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}

	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Generator.APIKeyEnv == "" {
		cfg.Generator.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "gpt-4o-mini"
	}
	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = 300
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 30
	}
	if cfg.Generator.RetryDelayMs == 0 {
		cfg.Generator.RetryDelayMs = 500
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}
