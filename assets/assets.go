package assets

import "embed"

const (
	SqliteMigrationDir   = "migrations/sqlite"
	PostgresMigrationDir = "migrations/postgres"
	MySQLMigrationDir    = "migrations/mysql"

	// DemoRules is the hierarchy definition of the demo data seeded by the migrations.
	DemoRules = "rules/demo.yaml"
)

//go:embed migrations/*
var EmbedMigrations embed.FS

//go:embed rules/*.yaml
var EmbedRules embed.FS
