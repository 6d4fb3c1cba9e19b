package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDriverURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/gw?sslmode=disable", driverURL("postgres://u:p@db:5432/gw?sslmode=disable"))
	require.Equal(t, "pgx5://db/gw", driverURL("postgresql://db/gw"))
	require.Equal(t, "pgx5://db/gw", driverURL("pgx5://db/gw"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.Glob(files, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range entries {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.Equal(t, ups, downs)

	schema, err := fs.ReadFile(files, "000001_create_connected_accounts.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(schema), "(user_id, provider)")
}
