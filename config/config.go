package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the pagemind services
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Indexing  IndexingConfig  `mapstructure:"indexing"`
	Suggest   SuggestConfig   `mapstructure:"suggest"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return fmt.Errorf("server.jwt_secret is required")
	}
	return nil
}

// LLMConfig describes the OpenAI-compatible endpoint used for embeddings and completions.
type LLMConfig struct {
	Type              string        `mapstructure:"type"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	EmbeddingModel    string        `mapstructure:"embedding_model"`
	CompletionModel   string        `mapstructure:"completion_model"`
	MaxRetries        int           `mapstructure:"max_retries"`
	EmbeddingTimeout  time.Duration `mapstructure:"embedding_timeout"`
	CompletionTimeout time.Duration `mapstructure:"completion_timeout"`
	EmbeddingCacheTTL time.Duration `mapstructure:"embedding_cache_ttl"`
}

func (l LLMConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(l.Type)) {
	case "", "openai":
	default:
		return fmt.Errorf("llm.type %q is not supported", l.Type)
	}
	if strings.TrimSpace(l.EmbeddingModel) == "" {
		return fmt.Errorf("llm.embedding_model is required")
	}
	if strings.TrimSpace(l.CompletionModel) == "" {
		return fmt.Errorf("llm.completion_model is required")
	}
	if l.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries cannot be negative")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a lib/pq connection string, preferring the explicit url.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a Redis endpoint was configured at all.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

// VectorConfig selects and configures the vector index backend.
type VectorConfig struct {
	Backend    string        `mapstructure:"backend"` // qdrant, pgvector, memory
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	Collection string        `mapstructure:"collection"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

func (v VectorConfig) Validate() error {
	switch v.Backend {
	case "qdrant":
		if strings.TrimSpace(v.URL) == "" {
			return fmt.Errorf("vector.url required for qdrant backend")
		}
	case "pgvector", "memory":
	default:
		return fmt.Errorf("vector.backend must be one of qdrant, pgvector, memory (got %q)", v.Backend)
	}
	if strings.TrimSpace(v.Collection) == "" {
		return fmt.Errorf("vector.collection is required")
	}
	if v.Dimensions <= 0 {
		return fmt.Errorf("vector.dimensions must be > 0")
	}
	return nil
}

// IndexingConfig controls how best-effort index tasks are executed.
type IndexingConfig struct {
	Mode           string        `mapstructure:"mode"` // inline or stream
	Stream         string        `mapstructure:"stream"`
	ConsumerGroup  string        `mapstructure:"consumer_group"`
	TaskTimeout    time.Duration `mapstructure:"task_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	ReconcileCron  string        `mapstructure:"reconcile_cron"`
	ReconcileBatch int           `mapstructure:"reconcile_batch"`
}

// Normalize applies defaults for unset indexing values.
func (c IndexingConfig) Normalize() IndexingConfig {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = "inline"
	}
	if c.Stream == "" {
		c.Stream = "pagemind:index"
	}
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = "pagemind-indexers"
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.ReconcileBatch <= 0 {
		c.ReconcileBatch = 100
	}
	return c
}

func (c IndexingConfig) Validate() error {
	switch c.Mode {
	case "inline", "stream":
	default:
		return fmt.Errorf("indexing.mode must be inline or stream (got %q)", c.Mode)
	}
	return nil
}

// SuggestConfig tunes retrieval and synthesis.
type SuggestConfig struct {
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	Limit               int           `mapstructure:"limit"`
	Temperature         float64       `mapstructure:"temperature"`
	MaxTokens           int           `mapstructure:"max_tokens"`
	TaggingEnabled      bool          `mapstructure:"tagging_enabled"`
	TaggingTimeout      time.Duration `mapstructure:"tagging_timeout"`
}

// Normalize applies defaults for unset suggestion values.
func (c SuggestConfig) Normalize() SuggestConfig {
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 0.7
	}
	if c.Limit <= 0 {
		c.Limit = 5
	}
	if c.TaggingTimeout <= 0 {
		c.TaggingTimeout = 10 * time.Second
	}
	return c
}

func (c SuggestConfig) Validate() error {
	if c.SimilarityThreshold > 1 {
		return fmt.Errorf("suggest.similarity_threshold must be within (0,1]")
	}
	return nil
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// LoadConfig loads config from file and PAGEMIND_* environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("PAGEMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Indexing = cfg.Indexing.Normalize()
	cfg.Suggest = cfg.Suggest.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	validators := []func() error{
		c.Server.Validate,
		c.LLM.Validate,
		c.Storage.Postgres.Validate,
		c.Vector.Validate,
		c.Indexing.Validate,
		c.Suggest.Validate,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	if c.Indexing.Mode == "stream" && !c.Storage.Redis.Enabled() {
		return fmt.Errorf("indexing.mode=stream requires storage.redis.host")
	}
	// a memory index lives in one process; stream workers would write to their own copy
	if c.Indexing.Mode == "stream" && c.Vector.Backend == "memory" {
		return fmt.Errorf("vector.backend=memory requires indexing.mode=inline")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.migrations_dir", "file://migrations")
	v.SetDefault("llm.type", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.embedding_model", "text-embedding-ada-002")
	v.SetDefault("llm.completion_model", "gpt-3.5-turbo")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.embedding_timeout", 15*time.Second)
	v.SetDefault("llm.completion_timeout", 30*time.Second)
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("vector.backend", "qdrant")
	v.SetDefault("vector.url", "http://localhost:6333")
	v.SetDefault("vector.collection", "page_embeddings")
	v.SetDefault("vector.dimensions", 1536)
	v.SetDefault("vector.timeout", 10*time.Second)
	v.SetDefault("vector.max_retries", 2)
	v.SetDefault("indexing.mode", "inline")
	v.SetDefault("indexing.reconcile_cron", "*/15 * * * *")
	v.SetDefault("suggest.similarity_threshold", 0.7)
	v.SetDefault("suggest.limit", 5)
	v.SetDefault("suggest.temperature", 0.3)
	v.SetDefault("suggest.tagging_enabled", true)
	v.SetDefault("telemetry.metrics_enabled", true)
}
