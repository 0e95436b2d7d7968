package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessvault/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	v, err := Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	require.NoError(t, Migrate(ctx, conn))
	require.NoError(t, Migrate(ctx, conn))

	steps, err := Steps()
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	v, err = Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, steps[len(steps)-1].Version, v)

	for _, table := range []string{"api_keys", "events"} {
		var name string
		err := conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestReadStepsOrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/010_late.sql":  {Data: []byte("SELECT 10;")},
		"sql/002_mid.sql":   {Data: []byte("SELECT 2;")},
		"sql/001_first.sql": {Data: []byte("SELECT 1;")},
		"sql/README.md":     {Data: []byte("ignored")},
	}
	steps, err := readSteps(fsys, "sql")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{steps[0].Version, steps[1].Version, steps[2].Version})
	assert.Equal(t, "010_late.sql", steps[2].Name)
}

func TestReadStepsRejectsBadNames(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"no prefix":   {"sql/init.sql": {Data: []byte("")}},
		"not numeric": {"sql/abc_init.sql": {Data: []byte("")}},
		"duplicate": {
			"sql/001_a.sql": {Data: []byte("")},
			"sql/001_b.sql": {Data: []byte("")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := readSteps(fsys, "sql")
			assert.Error(t, err)
		})
	}
}

func TestApplySkipsRecordedVersions(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	first := []Step{{Version: 1, Name: "001_t.sql", SQL: "CREATE TABLE t(x INTEGER);"}}
	require.NoError(t, apply(ctx, conn, first))
	// re-running version 1 would fail on the existing table
	second := append(first, Step{Version: 2, Name: "002_u.sql", SQL: "CREATE TABLE u(y INTEGER);"})
	require.NoError(t, apply(ctx, conn, second))

	v, err := Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
