package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the CatStealer server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	CatAPI   CatAPIConfig
	Jobs     JobsConfig
	Storage  StorageConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	RateLimitPerMin int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type CatAPIConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type JobsConfig struct {
	QueueCapacity int
	Retention     time.Duration
}

type StorageConfig struct {
	Backend string
	FSDir   string
	S3      S3Config
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

var validBackends = map[string]bool{
	"fs": true,
	"s3": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("CATSTEALER_PORT", 8080),
			Env:             envString("CATSTEALER_ENV", "development"),
			RateLimitPerMin: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		CatAPI: CatAPIConfig{
			BaseURL: envString("CATAPI_BASE_URL", "https://api.thecatapi.com/v1"),
			APIKey:  os.Getenv("CATAPI_KEY"),
			Timeout: envDuration("CATAPI_TIMEOUT", 30*time.Second),
		},
		Jobs: JobsConfig{
			QueueCapacity: envInt("QUEUE_CAPACITY", 100),
			Retention:     envDuration("JOB_RETENTION", 24*time.Hour),
		},
		Storage: StorageConfig{
			Backend: envString("STORAGE_BACKEND", "fs"),
			FSDir:   envString("STORAGE_FS_DIR", "./cat-images"),
			S3: S3Config{
				Endpoint:  os.Getenv("S3_ENDPOINT"),
				Bucket:    envString("S3_BUCKET", "cat-images"),
				AccessKey: os.Getenv("S3_ACCESS_KEY"),
				SecretKey: os.Getenv("S3_SECRET_KEY"),
				UseSSL:    envBool("S3_USE_SSL", false),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !strings.HasPrefix(c.CatAPI.BaseURL, "http://") && !strings.HasPrefix(c.CatAPI.BaseURL, "https://") {
		return fmt.Errorf("CATAPI_BASE_URL must start with http:// or https://, got %q", c.CatAPI.BaseURL)
	}

	if c.Jobs.QueueCapacity <= 0 {
		return fmt.Errorf("QUEUE_CAPACITY must be positive, got %d", c.Jobs.QueueCapacity)
	}

	if !validBackends[c.Storage.Backend] {
		return fmt.Errorf("STORAGE_BACKEND must be one of fs, s3; got %q", c.Storage.Backend)
	}

	if c.Storage.Backend == "s3" {
		if c.Storage.S3.Endpoint == "" {
			return fmt.Errorf("S3_ENDPOINT is required when STORAGE_BACKEND is s3")
		}
		if c.Storage.S3.AccessKey == "" || c.Storage.S3.SecretKey == "" {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required when STORAGE_BACKEND is s3")
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
