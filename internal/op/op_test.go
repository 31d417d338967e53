package op

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tokengate/tokengate/internal/db"
)

// setupDB points the package-level store at a fresh sqlite file and reloads
// every cache from it.
func setupDB(t *testing.T) context.Context {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, db.InitDB("sqlite", path, false))
	require.NoError(t, InitCache())
	t.Cleanup(func() { _ = db.Close() })
	return context.Background()
}
