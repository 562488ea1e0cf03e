package cleanup

import (
	"time"

	"github.com/AtRiskMedia/pagecontent-go/pkg/config"
)

// Config holds the sweeper settings.
type Config struct {
	CleanupInterval  time.Duration
	RecordTTL        time.Duration
	PurgeAfter       time.Duration
	VerboseReporting bool
}

// NewConfig copies the sweeper settings out of the service configuration.
func NewConfig(cfg *config.Config) *Config {
	return &Config{
		CleanupInterval:  cfg.CacheCleanupInterval,
		RecordTTL:        cfg.CacheRecordTTL,
		PurgeAfter:       cfg.CachePurgeAfter,
		VerboseReporting: cfg.CacheCleanupVerbose,
	}
}
