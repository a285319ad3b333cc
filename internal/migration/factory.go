package migration

import (
	"fmt"
	"strings"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/internal/database"
)

// NewMigratorFromDatabaseConfig builds a migrator for the same database the
// settings store opens.
func NewMigratorFromDatabaseConfig(cfg database.Config) (*DefaultMigrator, error) {
	return NewMigratorFromURL(cfg.Driver, cfg.DSN)
}

// NewMigratorFromURL creates a migrator from a driver name and DSN.
func NewMigratorFromURL(dbType, dsn string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  migrationDSN(dt, dsn),
	})
}

// migrationDSN adjusts an application DSN for running migration files.
// MySQL needs multiStatements since each file holds several statements.
func migrationDSN(dt DatabaseType, dsn string) string {
	if dt != DatabaseTypeMySQL || strings.Contains(dsn, "multiStatements=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&multiStatements=true"
	}
	return dsn + "?multiStatements=true"
}
