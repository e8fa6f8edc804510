package assets

import "embed"

const (
	SqliteMigrationDir   = "migrations/sqlite"
	PostgresMigrationDir = "migrations/postgres"
	MySQLMigrationDir    = "migrations/mysql"

	ListenerTemplate = "listener/wordTreeListener.html"
)

//go:embed migrations/*
var EmbedMigrations embed.FS

//go:embed listener/*
var EmbedListener embed.FS
