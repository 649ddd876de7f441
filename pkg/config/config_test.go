package config

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/iTwin/presentation-hierarchies/pkg/query"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Verify())
}

func TestVerifyConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *Config)
		err    string
	}{
		{
			name:   "unknown_engine",
			modify: func(cfg *Config) { cfg.Datastore.Engine = "memory" },
			err:    "config 'datastore.engine' must be one of [sqlite postgres mysql]",
		},
		{
			name:   "missing_uri",
			modify: func(cfg *Config) { cfg.Datastore.URI = "" },
			err:    "config 'datastore.uri' must be set",
		},
		{
			name: "idle_conns_above_open_conns",
			modify: func(cfg *Config) {
				cfg.Datastore.MaxOpenConns = 5
				cfg.Datastore.MaxIdleConns = 10
			},
			err: "config 'datastore.maxIdleConns' (10) cannot be greater than 'datastore.maxOpenConns' (5)",
		},
		{
			name:   "zero_level_size_limit",
			modify: func(cfg *Config) { cfg.Hierarchy.LevelSizeLimit = 0 },
			err:    "config 'hierarchy.levelSizeLimit' must be greater than 0 or -1 for no limit",
		},
		{
			name:   "zero_cache_size",
			modify: func(cfg *Config) { cfg.Hierarchy.CacheSize = 0 },
			err:    "config 'hierarchy.cacheSize' must be greater than 0",
		},
		{
			name:   "negative_variations",
			modify: func(cfg *Config) { cfg.Hierarchy.VariationsPerPath = -1 },
			err:    "config 'hierarchy.variationsPerPath' cannot be negative",
		},
		{
			name:   "zero_concurrency",
			modify: func(cfg *Config) { cfg.Hierarchy.ChildrenConcurrency = 0 },
			err:    "config 'hierarchy.childrenConcurrency' must be greater than 0",
		},
		{
			name:   "log_format",
			modify: func(cfg *Config) { cfg.Log.Format = "xml" },
			err:    "config 'log.format' must be one of ['text', 'json']",
		},
		{
			name:   "log_level",
			modify: func(cfg *Config) { cfg.Log.Level = "verbose" },
			err:    "config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error']",
		},
		{
			name:   "sample_ratio",
			modify: func(cfg *Config) { cfg.Trace.SampleRatio = 1.5 },
			err:    "config 'trace.sampleRatio' must be between 0 and 1",
		},
		{
			name:   "metadata_cache_size",
			modify: func(cfg *Config) { cfg.Metadata.CacheSize = 0 },
			err:    "config 'metadata.cacheSize' must be greater than 0",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.modify(cfg)
			require.EqualError(t, cfg.Verify(), test.err)
		})
	}

	t.Run("invalid_locale", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Hierarchy.Locale = "not a locale"
		require.ErrorContains(t, cfg.Verify(), "config 'hierarchy.locale' is invalid")
	})

	t.Run("invalid_category_level", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Log.Categories = []string{"Hierarchies.Queries=loud"}
		require.ErrorContains(t, cfg.Verify(), `config 'log.categories' entry "Hierarchies.Queries=loud" is invalid`)

		cfg.Log.Categories = []string{"Hierarchies.Queries"}
		require.ErrorContains(t, cfg.Verify(), "must be of the form 'category=severity'")
	})
}

func TestHierarchyConfig(t *testing.T) {
	cfg := DefaultConfig().Hierarchy
	require.Equal(t, query.DefaultLevelSizeLimit, cfg.SizeLimit())

	cfg.LevelSizeLimit = -1
	require.Equal(t, query.Unbounded, cfg.SizeLimit())

	tag, err := cfg.LocaleTag()
	require.NoError(t, err)
	require.Equal(t, language.Und, tag)

	cfg.Locale = "lt-LT"
	tag, err = cfg.LocaleTag()
	require.NoError(t, err)
	require.Equal(t, language.MustParse("lt-LT"), tag)
}

func TestCategoryLevels(t *testing.T) {
	opts, err := LogConfig{Categories: []string{
		"Hierarchies.Queries=trace",
		"Hierarchies.Grouping=warning",
	}}.CategoryLevels()
	require.NoError(t, err)
	require.Len(t, opts, 2)
}
