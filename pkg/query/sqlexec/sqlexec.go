// Package sqlexec runs hierarchy queries against SQL databases.
package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.
	_ "modernc.org/sqlite"              // SQLite driver.
)

const (
	EngineSqlite   = "sqlite"
	EnginePostgres = "postgres"
	EngineMySQL    = "mysql"
)

var ErrUnsupportedEngine = errors.New("unsupported datastore engine")

// Config holds connection pool settings.
type Config struct {
	Username        string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	// ConnectTimeout bounds the time spent waiting for the database to answer a ping.
	ConnectTimeout time.Duration
}

// PrepareSqliteDSN sets defaults for journal mode and busy timeout unless the DSN
// specifies them.
func PrepareSqliteDSN(uri string) (string, error) {
	query := url.Values{}
	var err error

	if i := strings.Index(uri, "?"); i != -1 {
		query, err = url.ParseQuery(uri[i+1:])
		if err != nil {
			return uri, fmt.Errorf("error parsing dsn: %w", err)
		}

		uri = uri[:i]
	}

	foundJournalMode := false
	foundBusyTimeout := false
	for _, val := range query["_pragma"] {
		if strings.HasPrefix(val, "journal_mode") {
			foundJournalMode = true
		} else if strings.HasPrefix(val, "busy_timeout") {
			foundBusyTimeout = true
		}
	}

	if !foundJournalMode {
		query.Add("_pragma", "journal_mode(WAL)")
	}
	if !foundBusyTimeout {
		query.Add("_pragma", "busy_timeout(100)")
	}

	uri += "?" + query.Encode()

	return uri, nil
}

func driverName(engine string) (string, error) {
	switch engine {
	case EngineSqlite:
		return "sqlite", nil
	case EnginePostgres:
		return "pgx", nil
	case EngineMySQL:
		return "mysql", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedEngine, engine)
	}
}

// Open connects to the datastore and waits for it to answer a ping.
func Open(ctx context.Context, engine, uri string, cfg Config) (*sql.DB, error) {
	driver, err := driverName(engine)
	if err != nil {
		return nil, err
	}

	switch engine {
	case EngineSqlite:
		if uri, err = PrepareSqliteDSN(uri); err != nil {
			return nil, err
		}
	case EngineMySQL:
		if cfg.Username != "" || cfg.Password != "" {
			dsnCfg, err := mysql.ParseDSN(uri)
			if err != nil {
				return nil, fmt.Errorf("failed to parse mysql connection dsn: %w", err)
			}
			if cfg.Username != "" {
				dsnCfg.User = cfg.Username
			}
			if cfg.Password != "" {
				dsnCfg.Passwd = cfg.Password
			}
			uri = dsnCfg.FormatDSN()
		}
	case EnginePostgres:
		if cfg.Username != "" || cfg.Password != "" {
			parsed, err := url.Parse(uri)
			if err != nil {
				return nil, fmt.Errorf("parse postgres connection uri: %w", err)
			}
			username := cfg.Username
			if username == "" && parsed.User != nil {
				username = parsed.User.Username()
			}
			if cfg.Password != "" {
				parsed.User = url.UserPassword(username, cfg.Password)
			} else {
				parsed.User = url.User(username)
			}
			uri = parsed.String()
		}
	}

	db, err := sql.Open(driver, uri)
	if err != nil {
		return nil, fmt.Errorf("initialize %s connection: %w", engine, err)
	}

	if cfg.MaxOpenConns != 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns != 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime != 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime != 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.ConnectTimeout
	if policy.MaxElapsedTime == 0 {
		policy.MaxElapsedTime = time.Minute
	}
	err = backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", engine, err)
	}

	return db, nil
}

// placeholders returns the placeholder format of the engine's driver.
func placeholders(engine string) sq.PlaceholderFormat {
	if engine == EnginePostgres {
		return sq.Dollar
	}
	return sq.Question
}
