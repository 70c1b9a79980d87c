package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hunterwarburton/agentgo/internal/logger"
)

// Vector store backends.
const (
	StoreMilvus = "milvus"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Embedding providers.
const (
	ProviderDashScope = "dashscope"
	ProviderOpenAI    = "openai"
)

// EmbeddingConfig configures the embedding provider and batcher.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	BatchSize   int    `yaml:"batch_size"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
	CacheSize   int    `yaml:"cache_size"`
}

// ChatConfig configures the OpenAI-compatible chat endpoint.
type ChatConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	ToolModel   string `yaml:"tool_model"`
	AnswerModel string `yaml:"answer_model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// MilvusConfig holds connection details for a Milvus server.
type MilvusConfig struct {
	Address  string `yaml:"address"`
	Token    string `yaml:"token"`
	DBPrefix string `yaml:"db_prefix"`
}

// VectorStoreConfig selects the vector store backend.
type VectorStoreConfig struct {
	Type   string       `yaml:"type"`
	Milvus MilvusConfig `yaml:"milvus"`
}

// IngestConfig holds chunking defaults for document uploads.
type IngestConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	DefaultDB    string `yaml:"default_db"`
	TopK         int    `yaml:"top_k"`
	// ExtractTimeoutSecs bounds text extraction of a single PDF.
	ExtractTimeoutSecs int `yaml:"extract_timeout_secs"`
}

// TelegramConfig holds the bot token and access lists.
type TelegramConfig struct {
	Token          string `yaml:"token"`
	AdminUserIDs   string `yaml:"admin_user_ids"`
	AllowedUserIDs string `yaml:"allowed_user_ids"`
	Workers        int    `yaml:"workers"`
}

// Config represents the application configuration.
type Config struct {
	LogLevel    string            `yaml:"log_level"`
	DataDir     string            `yaml:"data_dir"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Chat        ChatConfig        `yaml:"chat"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Telegram    TelegramConfig    `yaml:"telegram"`
}

// TablesDir is where serialized datasets live.
func (c *Config) TablesDir() string { return filepath.Join(c.DataDir, "tables") }

// VectorsDir is where the sqlite backend keeps one file per database.
func (c *Config) VectorsDir() string { return filepath.Join(c.DataDir, "vectors") }

// ChartsDir is where rendered charts are written.
func (c *Config) ChartsDir() string { return filepath.Join(c.DataDir, "tmp") }

// UploadsDir is where uploaded files are spooled before extraction.
func (c *Config) UploadsDir() string { return filepath.Join(c.DataDir, "uploads") }

// HistoryPath is the sqlite file holding the interaction log.
func (c *Config) HistoryPath() string { return filepath.Join(c.DataDir, "history.db") }

// Load reads .env, then the YAML file at path (if it exists), then applies
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found or error loading it")
	}

	// -1 marks "unset" so an explicit overlap of 0 survives defaults.
	cfg := &Config{Ingest: IngestConfig{ChunkOverlap: -1}}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			logger.Debug("Config file %s not found, using environment and defaults", path)
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks the settings every surface needs. Surface-specific
// secrets (the Telegram token) are checked by the caller.
func (c *Config) Validate() error {
	var errs []error
	if c.Chat.APIKey == "" {
		errs = append(errs, errors.New("CHAT_API_KEY (or DASHSCOPE_API_KEY) is required"))
	}
	if c.Embedding.APIKey == "" {
		errs = append(errs, errors.New("EMBEDDING_API_KEY (or DASHSCOPE_API_KEY) is required"))
	}
	switch c.VectorStore.Type {
	case StoreMilvus, StoreSQLite, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown vector store %q", c.VectorStore.Type))
	}
	switch c.Embedding.Provider {
	case ProviderDashScope, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider))
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.Ingest.ChunkOverlap, c.Ingest.ChunkSize))
	}
	return errors.Join(errs...)
}

func applyEnv(cfg *Config) {
	dashscopeKey := os.Getenv("DASHSCOPE_API_KEY")

	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.DataDir = getEnvWithDefault("DATA_DIR", cfg.DataDir)

	cfg.Embedding.Provider = getEnvWithDefault("EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.BaseURL = getEnvWithDefault("EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.APIKey = firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), cfg.Embedding.APIKey, dashscopeKey)
	cfg.Embedding.Model = getEnvWithDefault("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.BatchSize = getEnvInt("EMBEDDING_BATCH_SIZE", cfg.Embedding.BatchSize)

	cfg.Chat.BaseURL = getEnvWithDefault("CHAT_BASE_URL", cfg.Chat.BaseURL)
	cfg.Chat.APIKey = firstNonEmpty(os.Getenv("CHAT_API_KEY"), cfg.Chat.APIKey, dashscopeKey)
	cfg.Chat.ToolModel = getEnvWithDefault("TOOL_MODEL", cfg.Chat.ToolModel)
	cfg.Chat.AnswerModel = getEnvWithDefault("ANSWER_MODEL", cfg.Chat.AnswerModel)

	cfg.VectorStore.Type = getEnvWithDefault("VECTOR_STORE", cfg.VectorStore.Type)
	cfg.VectorStore.Milvus.Address = getEnvWithDefault("MILVUS_ADDRESS", cfg.VectorStore.Milvus.Address)
	cfg.VectorStore.Milvus.Token = getEnvWithDefault("MILVUS_TOKEN", cfg.VectorStore.Milvus.Token)
	cfg.VectorStore.Milvus.DBPrefix = getEnvWithDefault("MILVUS_DB_PREFIX", cfg.VectorStore.Milvus.DBPrefix)

	cfg.Ingest.ChunkSize = getEnvInt("CHUNK_SIZE", cfg.Ingest.ChunkSize)
	cfg.Ingest.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", cfg.Ingest.ChunkOverlap)
	cfg.Ingest.DefaultDB = getEnvWithDefault("DEFAULT_DB", cfg.Ingest.DefaultDB)

	cfg.Telegram.Token = getEnvWithDefault("TG_BOT_TOKEN", cfg.Telegram.Token)
	cfg.Telegram.AdminUserIDs = getEnvWithDefault("ADMIN_USER_IDS", cfg.Telegram.AdminUserIDs)
	cfg.Telegram.AllowedUserIDs = getEnvWithDefault("ALLOWED_USER_IDS", cfg.Telegram.AllowedUserIDs)
	cfg.Telegram.Workers = getEnvInt("TG_WORKERS", cfg.Telegram.Workers)
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderDashScope
	}
	if cfg.Embedding.BaseURL == "" {
		if cfg.Embedding.Provider == ProviderOpenAI {
			cfg.Embedding.BaseURL = "https://api.openai.com/v1"
		} else {
			cfg.Embedding.BaseURL = "https://dashscope.aliyuncs.com/api/v1"
		}
	}
	if cfg.Embedding.Model == "" {
		if cfg.Embedding.Provider == ProviderOpenAI {
			cfg.Embedding.Model = "text-embedding-3-small"
		} else {
			cfg.Embedding.Model = "text-embedding-v2"
		}
	}
	if cfg.Embedding.BatchSize <= 0 {
		cfg.Embedding.BatchSize = 25
	}
	if cfg.Embedding.TimeoutSecs <= 0 {
		cfg.Embedding.TimeoutSecs = 30
	}
	if cfg.Embedding.MaxRetries <= 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.Embedding.CacheSize <= 0 {
		cfg.Embedding.CacheSize = 1000
	}

	if cfg.Chat.BaseURL == "" {
		cfg.Chat.BaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	}
	if cfg.Chat.ToolModel == "" {
		cfg.Chat.ToolModel = "qwen-max"
	}
	if cfg.Chat.AnswerModel == "" {
		cfg.Chat.AnswerModel = "qwen2-7b-instruct"
	}
	if cfg.Chat.TimeoutSecs <= 0 {
		cfg.Chat.TimeoutSecs = 120
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = StoreSQLite
	}
	if cfg.VectorStore.Milvus.Address == "" {
		cfg.VectorStore.Milvus.Address = "localhost:19530"
	}
	if cfg.VectorStore.Milvus.DBPrefix == "" {
		cfg.VectorStore.Milvus.DBPrefix = "agentgo_"
	}

	if cfg.Ingest.ChunkSize <= 0 {
		cfg.Ingest.ChunkSize = 250
	}
	if cfg.Ingest.ChunkOverlap < 0 {
		cfg.Ingest.ChunkOverlap = 100
	}
	if cfg.Ingest.DefaultDB == "" {
		cfg.Ingest.DefaultDB = "test"
	}
	if cfg.Ingest.TopK <= 0 {
		cfg.Ingest.TopK = 5
	}
	if cfg.Ingest.ExtractTimeoutSecs <= 0 {
		cfg.Ingest.ExtractTimeoutSecs = 120
	}

	if cfg.Telegram.Workers <= 0 {
		cfg.Telegram.Workers = 4
	}
}

// getEnvWithDefault gets an environment variable or returns a default value.
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logger.Warn("Ignoring non-integer %s=%q", key, value)
		return defaultValue
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
