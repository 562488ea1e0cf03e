// Package config provides centralized configuration for the content service.
// Values come from the environment, with an optional .env file loaded first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the service.
type Config struct {
	// Server
	Port               string        `env:"PORT"                 envDefault:"8080"`
	GinMode            string        `env:"GIN_MODE"             envDefault:"debug"`
	ServerReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT"  envDefault:"15s"`
	ServerWriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	ServerIdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT"  envDefault:"60s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT"     envDefault:"30s"`

	// Backing store
	DBDriver                 string        `env:"DB_DRIVER"                    envDefault:"sqlite3"`
	SQLitePath               string        `env:"SQLITE_PATH"                  envDefault:"data/content.db"`
	TursoDatabaseURL         string        `env:"TURSO_DATABASE_URL"`
	TursoAuthToken           string        `env:"TURSO_AUTH_TOKEN"`
	DBMaxOpenConns           int           `env:"DB_MAX_OPEN_CONNS"            envDefault:"10"`
	DBMaxIdleConns           int           `env:"DB_MAX_IDLE_CONNS"            envDefault:"3"`
	DBConnMaxLifetimeMinutes int           `env:"DB_CONN_MAX_LIFETIME_MINUTES" envDefault:"30"`
	DBConnMaxIdleMinutes     int           `env:"DB_CONN_MAX_IDLE_MINUTES"     envDefault:"3"`
	SlowQueryThreshold       time.Duration `env:"SLOW_QUERY_THRESHOLD"         envDefault:"500ms"`
	ContentLocale            string        `env:"CONTENT_LOCALE"               envDefault:"pt"`

	// Local cache
	CacheEnabled         bool          `env:"CACHE_ENABLED"          envDefault:"true"`
	CachePath            string        `env:"CACHE_PATH"             envDefault:"data/cache.db"`
	CacheFlushInterval   time.Duration `env:"CACHE_FLUSH_INTERVAL"   envDefault:"2s"`
	CacheRecordTTL       time.Duration `env:"CACHE_RECORD_TTL"       envDefault:"24h"`
	CachePurgeAfter      time.Duration `env:"CACHE_PURGE_AFTER"      envDefault:"1h"`
	CacheCleanupInterval time.Duration `env:"CACHE_CLEANUP_INTERVAL" envDefault:"30m"`
	CacheCleanupVerbose  bool          `env:"CACHE_CLEANUP_VERBOSE"  envDefault:"false"`

	// Background revalidation
	RevalidationWorkers   int           `env:"REVALIDATION_WORKERS"    envDefault:"4"`
	RevalidationQueueSize int           `env:"REVALIDATION_QUEUE_SIZE" envDefault:"256"`
	RevalidationTimeout   time.Duration `env:"REVALIDATION_TIMEOUT"    envDefault:"10s"`

	// Content features
	HistoryListLimit int    `env:"HISTORY_LIST_LIMIT" envDefault:"5"`
	WarmOnStartup    bool   `env:"WARM_ON_STARTUP"    envDefault:"true"`
	WarmConcurrency  int    `env:"WARM_CONCURRENCY"   envDefault:"4"`
	SeedDir          string `env:"SEED_DIR"`

	// Logging
	LogLevel         string `env:"LOG_LEVEL"          envDefault:"info"`
	LogJSON          bool   `env:"LOG_JSON"           envDefault:"true"`
	LogToFile        bool   `env:"LOG_TO_FILE"        envDefault:"false"`
	LogDirectory     string `env:"LOG_DIRECTORY"      envDefault:"logs"`
	LogIncludeSource bool   `env:"LOG_INCLUDE_SOURCE" envDefault:"false"`
}

var (
	envLoaded sync.Once
	current   *Config
	currentMu sync.RWMutex
)

func loadEnvFile() {
	envLoaded.Do(func() {
		if err := godotenv.Load(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Printf("Ignoring unreadable .env file: %v", err)
			}
			return
		}
		log.Println("Loaded configuration overrides from .env file")
	})
}

// Load reads the .env file (once) and parses the environment into a Config.
func Load() (*Config, error) {
	loadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentMu.Lock()
	current = &cfg
	currentMu.Unlock()
	return &cfg, nil
}

// Defaults returns a Config with every default applied and the environment
// ignored. Used by tests and tools.
func Defaults() *Config {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &cfg
}

// Current returns the most recently loaded configuration, or the defaults.
func Current() *Config {
	currentMu.RLock()
	defer currentMu.RUnlock()
	if current == nil {
		return Defaults()
	}
	return current
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite3":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when DB_DRIVER=sqlite3")
		}
	case "libsql":
		if c.TursoDatabaseURL == "" {
			return fmt.Errorf("TURSO_DATABASE_URL is required when DB_DRIVER=libsql")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want sqlite3 or libsql)", c.DBDriver)
	}
	if strings.TrimSpace(c.ContentLocale) == "" {
		return fmt.Errorf("CONTENT_LOCALE must not be empty")
	}
	if c.RevalidationWorkers < 1 {
		return fmt.Errorf("REVALIDATION_WORKERS must be >= 1")
	}
	if c.RevalidationQueueSize < 1 {
		return fmt.Errorf("REVALIDATION_QUEUE_SIZE must be >= 1")
	}
	if c.HistoryListLimit < 1 {
		return fmt.Errorf("HISTORY_LIST_LIMIT must be >= 1")
	}
	return nil
}

// DataSourceName returns the DSN for the configured driver.
func (c *Config) DataSourceName() string {
	if c.DBDriver == "libsql" {
		if c.TursoAuthToken == "" {
			return c.TursoDatabaseURL
		}
		return c.TursoDatabaseURL + "?authToken=" + c.TursoAuthToken
	}
	return c.SQLitePath
}
