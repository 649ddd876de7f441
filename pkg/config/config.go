// Package config contains all knobs and defaults used to configure the hierarchies CLI.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/iTwin/presentation-hierarchies/internal/build"
	"github.com/iTwin/presentation-hierarchies/pkg/logger"
	"github.com/iTwin/presentation-hierarchies/pkg/query"
	"github.com/iTwin/presentation-hierarchies/pkg/query/sqlexec"
)

const (
	DefaultLevelSizeLimit      = int(query.DefaultLevelSizeLimit)
	DefaultCacheSize           = 1000
	DefaultVariationsPerPath   = 1
	DefaultChildrenConcurrency = 10
	DefaultYieldEvery          = 100
	DefaultMetadataCacheSize   = 10000
)

// DatastoreConfig defines the database the hierarchies are loaded from.
type DatastoreConfig struct {
	// Engine is the datastore engine to use (e.g. 'sqlite', 'postgres', 'mysql')
	Engine   string
	URI      string
	Username string
	Password string

	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of connections to the datastore in the idle connection
	// pool.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum amount of time a connection to the datastore may be reused.
	ConnMaxLifetime time.Duration

	// ConnectTimeout bounds the time spent waiting for the datastore to become reachable.
	ConnectTimeout time.Duration
}

// HierarchyConfig defines the hierarchy provider settings.
type HierarchyConfig struct {
	// LevelSizeLimit is the maximum number of nodes a level may have. -1 disables the limit.
	LevelSizeLimit int

	// CacheSize is the number of parent paths whose levels are cached.
	CacheSize int

	// VariationsPerPath is the number of filtered or limited variations cached per path.
	VariationsPerPath int

	// ChildrenConcurrency bounds the concurrent children determinations of a level.
	ChildrenConcurrency int

	// YieldEvery is the number of nodes processed between cooperative yields.
	YieldEvery int

	// Locale is the BCP 47 tag used to sort node labels.
	Locale string
}

type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string

	// Categories sets per-category minimum severities as 'category=severity' pairs
	// (e.g. 'Hierarchies.Queries=trace').
	Categories []string
}

type TraceConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRatio  float64
	ServiceName  string
}

type MetadataConfig struct {
	// CacheSize is the maximum number of memoized classes and derivation answers.
	CacheSize int64
}

type Config struct {
	Datastore DatastoreConfig
	Hierarchy HierarchyConfig
	Log       LogConfig
	Trace     TraceConfig
	Metadata  MetadataConfig
}

// Verify checks that the settings are consistent.
func (cfg *Config) Verify() error {
	engines := []string{sqlexec.EngineSqlite, sqlexec.EnginePostgres, sqlexec.EngineMySQL}
	if !slices.Contains(engines, cfg.Datastore.Engine) {
		return fmt.Errorf("config 'datastore.engine' must be one of %v", engines)
	}

	if cfg.Datastore.URI == "" {
		return fmt.Errorf("config 'datastore.uri' must be set")
	}

	if cfg.Datastore.MaxOpenConns < 0 || cfg.Datastore.MaxIdleConns < 0 {
		return fmt.Errorf("config 'datastore.maxOpenConns' and 'datastore.maxIdleConns' cannot be negative")
	}

	if cfg.Datastore.MaxOpenConns != 0 && cfg.Datastore.MaxIdleConns > cfg.Datastore.MaxOpenConns {
		return fmt.Errorf(
			"config 'datastore.maxIdleConns' (%d) cannot be greater than 'datastore.maxOpenConns' (%d)",
			cfg.Datastore.MaxIdleConns,
			cfg.Datastore.MaxOpenConns,
		)
	}

	if cfg.Hierarchy.LevelSizeLimit == 0 || cfg.Hierarchy.LevelSizeLimit < -1 {
		return fmt.Errorf("config 'hierarchy.levelSizeLimit' must be greater than 0 or -1 for no limit")
	}

	if cfg.Hierarchy.CacheSize < 1 {
		return fmt.Errorf("config 'hierarchy.cacheSize' must be greater than 0")
	}

	if cfg.Hierarchy.VariationsPerPath < 0 {
		return fmt.Errorf("config 'hierarchy.variationsPerPath' cannot be negative")
	}

	if cfg.Hierarchy.ChildrenConcurrency < 1 {
		return fmt.Errorf("config 'hierarchy.childrenConcurrency' must be greater than 0")
	}

	if cfg.Hierarchy.YieldEvery < 1 {
		return fmt.Errorf("config 'hierarchy.yieldEvery' must be greater than 0")
	}

	if _, err := cfg.Hierarchy.LocaleTag(); err != nil {
		return fmt.Errorf("config 'hierarchy.locale' is invalid: %w", err)
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("config 'log.format' must be one of ['text', 'json']")
	}

	if cfg.Log.Level != "none" &&
		cfg.Log.Level != "debug" &&
		cfg.Log.Level != "info" &&
		cfg.Log.Level != "warn" &&
		cfg.Log.Level != "error" {
		return fmt.Errorf("config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error']")
	}

	if _, err := cfg.Log.CategoryLevels(); err != nil {
		return err
	}

	if cfg.Trace.SampleRatio < 0 || cfg.Trace.SampleRatio > 1 {
		return fmt.Errorf("config 'trace.sampleRatio' must be between 0 and 1")
	}

	if cfg.Metadata.CacheSize < 1 {
		return fmt.Errorf("config 'metadata.cacheSize' must be greater than 0")
	}

	return nil
}

// SizeLimit returns the configured level size limit.
func (c HierarchyConfig) SizeLimit() query.SizeLimit {
	if c.LevelSizeLimit < 0 {
		return query.Unbounded
	}
	return query.SizeLimit(c.LevelSizeLimit)
}

// LocaleTag parses the configured locale. An empty locale means language.Und.
func (c HierarchyConfig) LocaleTag() (language.Tag, error) {
	if c.Locale == "" {
		return language.Und, nil
	}
	return language.Parse(c.Locale)
}

// CategoryLevels parses the per-category severities.
func (c LogConfig) CategoryLevels() ([]logger.Option, error) {
	opts := make([]logger.Option, 0, len(c.Categories))
	for _, pair := range c.Categories {
		category, level, ok := strings.Cut(pair, "=")
		if !ok || category == "" {
			return nil, fmt.Errorf("config 'log.categories' entry %q must be of the form 'category=severity'", pair)
		}
		severity, err := logger.ParseSeverity(level)
		if err != nil {
			return nil, fmt.Errorf("config 'log.categories' entry %q is invalid: %w", pair, err)
		}
		opts = append(opts, logger.WithCategoryLevel(category, severity))
	}
	return opts, nil
}

// DefaultConfig is the configuration used when no flags, environment or config file override it.
func DefaultConfig() *Config {
	return &Config{
		Datastore: DatastoreConfig{
			Engine:         sqlexec.EngineSqlite,
			URI:            "file:hierarchies.db",
			MaxOpenConns:   30,
			MaxIdleConns:   10,
			ConnectTimeout: time.Minute,
		},
		Hierarchy: HierarchyConfig{
			LevelSizeLimit:      DefaultLevelSizeLimit,
			CacheSize:           DefaultCacheSize,
			VariationsPerPath:   DefaultVariationsPerPath,
			ChildrenConcurrency: DefaultChildrenConcurrency,
			YieldEvery:          DefaultYieldEvery,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Trace: TraceConfig{
			Enabled:      false,
			OTLPEndpoint: "0.0.0.0:4317",
			SampleRatio:  0.2,
			ServiceName:  build.ProjectName,
		},
		Metadata: MetadataConfig{
			CacheSize: DefaultMetadataCacheSize,
		},
	}
}
