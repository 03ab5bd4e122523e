package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration, populated from environment
// variables and an optional .env file.
type Config struct {
	Port          string
	UploadDir     string
	MaxUploadSize int64

	DB    DBConfig
	Redis RedisConfig

	Provider ProviderConfig
	Ingest   IngestConfig
	Search   SearchConfig
}

type DBConfig struct {
	Type       string // "sqlite" or "postgres"
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ProviderConfig describes the external embedding provider. BaseURL
// points at an OpenAI-compatible endpoint; the video task API lives
// under the same base.
type ProviderConfig struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	Dimensions     int
	PollInterval   time.Duration
	PollTimeout    time.Duration
}

type IngestConfig struct {
	// MaxChunkSeconds is the provider duration limit minus a safety
	// buffer; videos longer than this get split.
	MaxChunkSeconds     float64
	OverlapSeconds      float64
	ChunkWorkers        int
	ExtractTimeout      time.Duration
	QueueName           string
	WorkerCount         int
	CacheEvictInterval  time.Duration
	CacheEvictKeepCount int
}

type SearchConfig struct {
	MinSimilarity    float64
	DefaultTopKPhoto int
	DefaultTopKVideo int
	RequestTimeout   time.Duration
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		// .env is optional; environment variables alone are fine.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !strings.Contains(err.Error(), "no such file") {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("MAX_UPLOAD_SIZE", 2<<30)

	v.SetDefault("DB_TYPE", "sqlite")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "luminio")
	v.SetDefault("DB_PASSWORD", "luminio_dev")
	v.SetDefault("DB_NAME", "luminio")
	v.SetDefault("DB_PATH", "./luminio.db")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("EMBEDDING_BASE_URL", "")
	v.SetDefault("EMBEDDING_MODEL", "multimodal-embed-v2")
	v.SetDefault("EMBEDDING_DIMENSIONS", 1024)
	v.SetDefault("PROVIDER_POLL_INTERVAL", "3s")
	v.SetDefault("PROVIDER_POLL_TIMEOUT", "15m")

	// Provider accepts up to 120 minutes of video; plan chunks against
	// 110 minutes to keep a safety buffer.
	v.SetDefault("MAX_CHUNK_SECONDS", 6600.0)
	v.SetDefault("CHUNK_OVERLAP_SECONDS", 5.0)
	v.SetDefault("CHUNK_WORKERS", 3)
	v.SetDefault("EXTRACT_TIMEOUT", "10m")
	v.SetDefault("INGEST_QUEUE", "luminio:ingest")
	v.SetDefault("INGEST_WORKERS", 2)
	v.SetDefault("CACHE_EVICT_INTERVAL", "1h")
	v.SetDefault("CACHE_EVICT_KEEP", 10000)

	v.SetDefault("MIN_SIMILARITY", 0.3)
	v.SetDefault("TOP_K_PHOTOS", 20)
	v.SetDefault("TOP_K_VIDEOS", 10)
	v.SetDefault("SEARCH_TIMEOUT", "10s")

	cfg := &Config{
		Port:          v.GetString("PORT"),
		UploadDir:     v.GetString("UPLOAD_DIR"),
		MaxUploadSize: v.GetInt64("MAX_UPLOAD_SIZE"),
		DB: DBConfig{
			Type:       v.GetString("DB_TYPE"),
			Host:       v.GetString("DB_HOST"),
			Port:       v.GetInt("DB_PORT"),
			User:       v.GetString("DB_USER"),
			Password:   v.GetString("DB_PASSWORD"),
			Name:       v.GetString("DB_NAME"),
			SQLitePath: v.GetString("DB_PATH"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Provider: ProviderConfig{
			APIKey:         v.GetString("EMBEDDING_API_KEY"),
			BaseURL:        v.GetString("EMBEDDING_BASE_URL"),
			EmbeddingModel: v.GetString("EMBEDDING_MODEL"),
			Dimensions:     v.GetInt("EMBEDDING_DIMENSIONS"),
			PollInterval:   v.GetDuration("PROVIDER_POLL_INTERVAL"),
			PollTimeout:    v.GetDuration("PROVIDER_POLL_TIMEOUT"),
		},
		Ingest: IngestConfig{
			MaxChunkSeconds:     v.GetFloat64("MAX_CHUNK_SECONDS"),
			OverlapSeconds:      v.GetFloat64("CHUNK_OVERLAP_SECONDS"),
			ChunkWorkers:        v.GetInt("CHUNK_WORKERS"),
			ExtractTimeout:      v.GetDuration("EXTRACT_TIMEOUT"),
			QueueName:           v.GetString("INGEST_QUEUE"),
			WorkerCount:         v.GetInt("INGEST_WORKERS"),
			CacheEvictInterval:  v.GetDuration("CACHE_EVICT_INTERVAL"),
			CacheEvictKeepCount: v.GetInt("CACHE_EVICT_KEEP"),
		},
		Search: SearchConfig{
			MinSimilarity:    v.GetFloat64("MIN_SIMILARITY"),
			DefaultTopKPhoto: v.GetInt("TOP_K_PHOTOS"),
			DefaultTopKVideo: v.GetInt("TOP_K_VIDEOS"),
			RequestTimeout:   v.GetDuration("SEARCH_TIMEOUT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string

	switch c.DB.Type {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("unsupported DB_TYPE %q", c.DB.Type))
	}
	if c.Ingest.MaxChunkSeconds <= 0 {
		problems = append(problems, "MAX_CHUNK_SECONDS must be positive")
	}
	if c.Ingest.OverlapSeconds < 0 {
		problems = append(problems, "CHUNK_OVERLAP_SECONDS must not be negative")
	}
	if c.Ingest.OverlapSeconds >= c.Ingest.MaxChunkSeconds {
		problems = append(problems, "CHUNK_OVERLAP_SECONDS must be smaller than MAX_CHUNK_SECONDS")
	}
	if c.Search.MinSimilarity < -1 || c.Search.MinSimilarity > 1 {
		problems = append(problems, "MIN_SIMILARITY must be within [-1, 1]")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}
