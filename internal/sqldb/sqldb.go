// Package sqldb opens the shared database handle used by the SQL backed
// entity and conversation stores. SQLite (modernc.org/sqlite) and MySQL
// (github.com/go-sql-driver/mysql) are supported.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql" // registers "mysql"
	_ "modernc.org/sqlite"             // registers "sqlite"
)

// Config holds connection settings.
type Config struct {
	Driver string // "sqlite" or "mysql"
	DSN    string
}

// DB is a database handle paired with its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects, applies the dialect pragmas and pings the database.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqldb: empty dsn for driver %s", dialect.Name())
	}

	db, err := sql.Open(dialect.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect.Name() == "sqlite" {
		// A single writer avoids SQLITE_BUSY under concurrent requests.
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range dialect.PragmaStatements() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, Dialect: dialect}, nil
}

// Table describes a table for Migrate.
type Table struct {
	Name    string
	Columns []string
	Indexes []Index
}

// Index describes a secondary index.
type Index struct {
	Name    string
	Columns []string
}

// Migrate creates the given tables and their indexes if they do not exist.
func (db *DB) Migrate(ctx context.Context, tables ...Table) error {
	for _, stmt := range db.schemaStatements(tables) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (db *DB) schemaStatements(tables []Table) []string {
	var stmts []string
	for _, t := range tables {
		defs := append([]string(nil), t.Columns...)
		var separate []string
		for _, idx := range t.Indexes {
			if inline := db.Dialect.InlineIndex(idx.Name, idx.Columns...); inline != "" {
				defs = append(defs, inline)
			}
			if stmt := db.Dialect.CreateIndex(idx.Name, t.Name, idx.Columns...); stmt != "" {
				separate = append(separate, stmt)
			}
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.Name, strings.Join(defs, ",\n\t")))
		stmts = append(stmts, separate...)
	}
	return stmts
}

// Tx runs fn inside a transaction, rolling back on error.
func (db *DB) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
