package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore creates a store in a per-test temp dir.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"repositories", "events"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/index.db")
	assert.Error(t, err)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestOpen_SchemaVersionRecorded(t *testing.T) {
	s := openTestStore(t)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_ForeignKeysEnforced(t *testing.T) {
	s := openTestStore(t)

	// An event referencing an unknown repository must be rejected.
	err := s.UpsertEvent(context.Background(), EventRecord{
		EventRID:    "orn:github.event:orphan",
		RepoRID:     "orn:github.repo:ghost/repo",
		Kind:        "push",
		Timestamp:   "2024-01-01T00:00:00Z",
		Summary:     "orphan",
		ContentHash: "h",
	})
	assert.Error(t, err)
}
