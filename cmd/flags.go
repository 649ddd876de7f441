package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/iTwin/presentation-hierarchies/cmd/util"
	"github.com/iTwin/presentation-hierarchies/internal/build"
	"github.com/iTwin/presentation-hierarchies/pkg/config"
	"github.com/iTwin/presentation-hierarchies/pkg/logger"
	"github.com/iTwin/presentation-hierarchies/pkg/query/sqlexec"
	"github.com/iTwin/presentation-hierarchies/pkg/telemetry"
)

// configFlags maps flag names to the config keys they override.
var configFlags = []struct {
	flag string
	key  string
}{
	{"datastore-engine", "datastore.engine"},
	{"datastore-uri", "datastore.uri"},
	{"datastore-username", "datastore.username"},
	{"datastore-password", "datastore.password"},
	{"datastore-max-open-conns", "datastore.maxOpenConns"},
	{"datastore-max-idle-conns", "datastore.maxIdleConns"},
	{"datastore-conn-max-lifetime", "datastore.connMaxLifetime"},
	{"datastore-connect-timeout", "datastore.connectTimeout"},
	{"hierarchy-level-size-limit", "hierarchy.levelSizeLimit"},
	{"hierarchy-cache-size", "hierarchy.cacheSize"},
	{"hierarchy-variations-per-path", "hierarchy.variationsPerPath"},
	{"hierarchy-children-concurrency", "hierarchy.childrenConcurrency"},
	{"hierarchy-yield-every", "hierarchy.yieldEvery"},
	{"hierarchy-locale", "hierarchy.locale"},
	{"log-format", "log.format"},
	{"log-level", "log.level"},
	{"log-categories", "log.categories"},
	{"trace-enabled", "trace.enabled"},
	{"trace-otlp-endpoint", "trace.otlpEndpoint"},
	{"trace-sample-ratio", "trace.sampleRatio"},
	{"trace-service-name", "trace.serviceName"},
	{"metadata-cache-size", "metadata.cacheSize"},
}

// addConfigFlags registers the flags overriding config values on flags.
func addConfigFlags(flags *pflag.FlagSet) {
	defaultConfig := config.DefaultConfig()

	flags.String("datastore-engine", defaultConfig.Datastore.Engine, "the datastore engine instances are read from (e.g. 'sqlite', 'postgres', 'mysql')")
	flags.String("datastore-uri", defaultConfig.Datastore.URI, "the connection uri to use to connect to the datastore")
	flags.String("datastore-username", "", "the connection username to use to connect to the datastore (overwrites any username provided in the connection uri)")
	flags.String("datastore-password", "", "the connection password to use to connect to the datastore (overwrites any password provided in the connection uri)")
	flags.Int("datastore-max-open-conns", defaultConfig.Datastore.MaxOpenConns, "the maximum number of open connections to the datastore")
	flags.Int("datastore-max-idle-conns", defaultConfig.Datastore.MaxIdleConns, "the maximum number of connections to the datastore in the idle connection pool")
	flags.Duration("datastore-conn-max-lifetime", defaultConfig.Datastore.ConnMaxLifetime, "the maximum amount of time a connection to the datastore may be reused")
	flags.Duration("datastore-connect-timeout", defaultConfig.Datastore.ConnectTimeout, "a timeout after which connecting to the datastore is abandoned")

	flags.Int("hierarchy-level-size-limit", defaultConfig.Hierarchy.LevelSizeLimit, "the maximum number of nodes a hierarchy level may have (-1 for no limit)")
	flags.Int("hierarchy-cache-size", defaultConfig.Hierarchy.CacheSize, "the number of parent paths whose levels are cached")
	flags.Int("hierarchy-variations-per-path", defaultConfig.Hierarchy.VariationsPerPath, "the number of filtered or limited level variations cached per parent path")
	flags.Int("hierarchy-children-concurrency", defaultConfig.Hierarchy.ChildrenConcurrency, "the maximum number of concurrent children determinations per level")
	flags.Int("hierarchy-yield-every", defaultConfig.Hierarchy.YieldEvery, "the number of nodes processed between cooperative yields")
	flags.String("hierarchy-locale", defaultConfig.Hierarchy.Locale, "the BCP 47 locale used to sort node labels")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in")
	flags.String("log-level", defaultConfig.Log.Level, "the log level to use")
	flags.StringSlice("log-categories", defaultConfig.Log.Categories, "per-category log severities as 'category=severity' pairs (e.g. 'Hierarchies.Queries=trace')")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")
	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLPEndpoint, "the endpoint of the trace collector")
	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of traces to sample. 1 means all, 0 means none.")
	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces")

	flags.Int64("metadata-cache-size", defaultConfig.Metadata.CacheSize, "the maximum number of memoized classes and derivation answers")

	// NOTE: if you add a new flag here, add it to configFlags
}

// bindConfigFlags binds the cobra cmd flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags.
func bindConfigFlags(command *cobra.Command) {
	flags := command.Flags()
	prefix := strings.ToUpper(build.ProjectName) + "_"
	for _, f := range configFlags {
		util.MustBindPFlag(f.key, flags.Lookup(f.flag))
		util.MustBindEnv(f.key, prefix+strings.ToUpper(strings.ReplaceAll(f.flag, "-", "_")))
	}
}

// ReadConfig merges config.yaml, the environment and flags over the default config.
func ReadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Verify(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// commandContext holds what every datastore command needs.
type commandContext struct {
	Config *config.Config
	Logger logger.Logger
	tracer *sdktrace.TracerProvider
}

func newCommandContext() (*commandContext, error) {
	cfg, err := ReadConfig()
	if err != nil {
		return nil, err
	}

	categoryLevels, err := cfg.Log.CategoryLevels()
	if err != nil {
		return nil, err
	}
	l, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level, categoryLevels...)
	if err != nil {
		return nil, err
	}

	c := &commandContext{Config: cfg, Logger: l}
	if cfg.Trace.Enabled {
		c.tracer = telemetry.MustNewTracerProvider(
			telemetry.WithOTLPEndpoint(cfg.Trace.OTLPEndpoint),
			telemetry.WithServiceName(cfg.Trace.ServiceName),
			telemetry.WithSamplingRatio(cfg.Trace.SampleRatio),
		)
	}
	return c, nil
}

func (c *commandContext) openDatastore(ctx context.Context) (*sql.DB, error) {
	ds := c.Config.Datastore
	return sqlexec.Open(ctx, ds.Engine, ds.URI, sqlexec.Config{
		Username:        ds.Username,
		Password:        ds.Password,
		MaxOpenConns:    ds.MaxOpenConns,
		MaxIdleConns:    ds.MaxIdleConns,
		ConnMaxLifetime: ds.ConnMaxLifetime,
		ConnectTimeout:  ds.ConnectTimeout,
	})
}

func (c *commandContext) Close(ctx context.Context) {
	if c.tracer != nil {
		if err := c.tracer.Shutdown(ctx); err != nil {
			c.Logger.Warn(fmt.Sprintf("failed to shut down the tracer provider: %v", err))
		}
	}
}
