package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessvault/internal/config"
	"assessvault/internal/logger"
	"assessvault/internal/storage"
)

func TestLoadConfigAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("archive:\n  concurrency: 4\n"), 0o644))
	env := map[string]string{"storage.backend": "s3", "storage.bucket": "farms", "storage.region": "eu-central-1"}

	cfg, err := LoadConfig(dir, func(k string) string { return env[k] })
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Archive.Concurrency)
	assert.Equal(t, "farms", cfg.Storage.Bucket)

	delete(env, "storage.bucket")
	_, err = LoadConfig(dir, func(k string) string { return env[k] })
	assert.ErrorContains(t, err, "bucket")
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(ctx, config.Storage{Backend: config.BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &storage.Memory{}, s)

	s, err = NewStore(ctx, config.Storage{
		Backend:         config.BackendS3,
		Bucket:          "farms",
		Region:          "us-east-1",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	assert.IsType(t, &storage.S3{}, s)

	_, err = NewStore(ctx, config.Storage{Backend: "tape"})
	assert.Error(t, err)
}

func TestOpenWorkspace(t *testing.T) {
	dir := t.TempDir()
	e, conn, err := Open(context.Background(), dir, config.Default(), logger.NewTestLogger(t))
	require.NoError(t, err)
	defer conn.Close()
	assert.FileExists(t, filepath.Join(dir, ".assessvault", "assessvault.db"))

	require.NoError(t, e.Store.Put(context.Background(), "farm/a.txt", "text/plain", []byte("a")))
	entries, err := e.ListFolders(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsFolder())
}
