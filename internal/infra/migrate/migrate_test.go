package migrate

import (
	"io/fs"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/require"

	migrationsFS "github.com/agile-platform/backend/scripts/db/migrations"
)

func TestEmbeddedMigrations(t *testing.T) {
	src, err := iofs.New(migrationsFS.FS, ".")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	require.EqualValues(t, 1, first)

	up, name, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	require.Equal(t, "create_users", name)

	body, err := fs.ReadFile(migrationsFS.FS, "000001_create_users.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS users")
	require.Contains(t, string(body), "idx_users_email")
}
