package sqldb

import (
	"fmt"
	"strings"
)

// Dialect abstracts the SQL differences between the supported engines.
type Dialect interface {
	// Name returns the dialect identifier ("sqlite", "mysql").
	Name() string

	// DriverName returns the database/sql driver name.
	DriverName() string

	// KeyType returns the column type used for string primary keys.
	KeyType() string

	// TextType returns the column type for unbounded text.
	TextType() string

	// PragmaStatements returns statements run once after connecting.
	PragmaStatements() []string

	// CreateIndex returns the DDL for a secondary index, or "" when the
	// index is declared inline with the table.
	CreateIndex(name, table string, columns ...string) string

	// InlineIndex returns a table-level index clause, or "" when indexes are
	// created by separate statements.
	InlineIndex(name string, columns ...string) string
}

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return SQLite(), nil
	case "mysql":
		return MySQL(), nil
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// SQLite returns the SQLite dialect (modernc.org/sqlite, pure Go).
func SQLite() Dialect { return sqliteDialect{} }

// MySQL returns the MySQL dialect (github.com/go-sql-driver/mysql).
func MySQL() Dialect { return mysqlDialect{} }

type sqliteDialect struct{}

func (sqliteDialect) Name() string       { return "sqlite" }
func (sqliteDialect) DriverName() string { return "sqlite" }
func (sqliteDialect) KeyType() string    { return "TEXT" }
func (sqliteDialect) TextType() string   { return "TEXT" }

func (sqliteDialect) PragmaStatements() []string {
	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
}

func (sqliteDialect) CreateIndex(name, table string, columns ...string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", name, table, strings.Join(columns, ", "))
}

func (sqliteDialect) InlineIndex(string, ...string) string { return "" }

type mysqlDialect struct{}

func (mysqlDialect) Name() string       { return "mysql" }
func (mysqlDialect) DriverName() string { return "mysql" }
func (mysqlDialect) KeyType() string    { return "VARCHAR(64)" }
func (mysqlDialect) TextType() string   { return "LONGTEXT" }

func (mysqlDialect) PragmaStatements() []string { return nil }

// MySQL has no CREATE INDEX IF NOT EXISTS; indexes go inline.
func (mysqlDialect) CreateIndex(string, string, ...string) string { return "" }

func (mysqlDialect) InlineIndex(name string, columns ...string) string {
	return fmt.Sprintf("INDEX %s (%s)", name, strings.Join(columns, ", "))
}
