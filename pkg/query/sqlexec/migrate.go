package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"github.com/iTwin/presentation-hierarchies/assets"
)

// Migrate applies the schema migrations of the engine to db. targetVersion 0 migrates
// to the latest version.
func Migrate(ctx context.Context, db *sql.DB, engine string, targetVersion int64) (int64, error) {
	var (
		dialect goose.Dialect
		dir     string
	)
	switch engine {
	case EngineSqlite:
		dialect, dir = goose.DialectSQLite3, assets.SqliteMigrationDir
	case EnginePostgres:
		dialect, dir = goose.DialectPostgres, assets.PostgresMigrationDir
	case EngineMySQL:
		dialect, dir = goose.DialectMySQL, assets.MySQLMigrationDir
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedEngine, engine)
	}

	fsys, err := fs.Sub(assets.EmbedMigrations, dir)
	if err != nil {
		return 0, err
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("initialize %s migrations: %w", engine, err)
	}

	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get %s db version: %w", engine, err)
	}

	switch {
	case targetVersion == 0:
		_, err = provider.Up(ctx)
	case targetVersion < current:
		_, err = provider.DownTo(ctx, targetVersion)
	case targetVersion > current:
		_, err = provider.UpTo(ctx, targetVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("run %s migrations: %w", engine, err)
	}
	return provider.GetDBVersion(ctx)
}
