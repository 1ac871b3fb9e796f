package sqldb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	d, err = DialectFor("MySQL")
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.DriverName())
	assert.Nil(t, d.PragmaStatements())

	_, err = DialectFor("oracle")
	assert.Error(t, err)
}

func TestSchemaStatements(t *testing.T) {
	table := Table{
		Name:    "messages",
		Columns: []string{"id TEXT PRIMARY KEY", "conversation_id TEXT NOT NULL"},
		Indexes: []Index{{Name: "idx_messages_conversation", Columns: []string{"conversation_id"}}},
	}

	lite := (&DB{Dialect: SQLite()}).schemaStatements([]Table{table})
	require.Len(t, lite, 2)
	assert.Contains(t, lite[1], "CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)")

	my := (&DB{Dialect: MySQL()}).schemaStatements([]Table{table})
	require.Len(t, my, 1)
	assert.Contains(t, my[0], "INDEX idx_messages_conversation (conversation_id)")
}

func TestOpen_SQLiteMemory(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{Driver: "sqlite", DSN: "file:sqldb1?mode=memory&cache=shared"})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(ctx, Table{Name: "kv", Columns: []string{"k TEXT PRIMARY KEY", "v TEXT"}}))
	// idempotent
	require.NoError(t, db.Migrate(ctx, Table{Name: "kv", Columns: []string{"k TEXT PRIMARY KEY", "v TEXT"}}))

	_, err = db.ExecContext(ctx, "INSERT INTO kv (k, v) VALUES (?, ?)", "a", "1")
	require.NoError(t, err)

	var v string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT v FROM kv WHERE k = ?", "a").Scan(&v))
	assert.Equal(t, "1", v)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "sqlite"})
	assert.Error(t, err)
	_, err = Open(context.Background(), Config{Driver: "postgres", DSN: "x"})
	assert.Error(t, err)
}
