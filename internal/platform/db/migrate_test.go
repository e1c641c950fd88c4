package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPgxURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/ledger?sslmode=disable", pgxURL("postgres://u:p@localhost:5432/ledger?sslmode=disable"))
	require.Equal(t, "pgx5://h/db", pgxURL("postgresql://h/db"))
	require.Equal(t, "pgx5://h/db", pgxURL("pgx5://h/db"))
}

func TestMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationFS, "migrations/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))
}
