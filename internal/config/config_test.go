package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 60*time.Second, cfg.Storage.SignedURLTTL)
	assert.Equal(t, 32, cfg.Archive.MaxDepth)
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := FromYAML([]byte(`
storage:
  backend: s3
  bucket: assessments
  region: eu-west-1
  endpoint: https://project.supabase.co/storage/v1/s3
  use_path_style: true
archive:
  concurrency: 2
`))
	require.NoError(t, err)
	assert.Equal(t, "assessments", cfg.Storage.Bucket)
	assert.True(t, cfg.Storage.UsePathStyle)
	assert.Equal(t, 2, cfg.Archive.Concurrency)
	assert.Equal(t, 32, cfg.Archive.MaxDepth)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"unknown backend":   "storage:\n  backend: ftp\n",
		"s3 without bucket": "storage:\n  backend: s3\n",
		"half credentials":  "storage:\n  backend: s3\n  bucket: b\n  access_key_id: id\n",
		"zero depth":        "archive:\n  max_depth: 0\n",
		"relative base":     "server:\n  base_path: api\n",
		"bad log format":    "logging:\n  format: xml\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"storage.backend":        "s3",
		"storage.bucket":         "farm-data",
		"archive.convert_json":   "false",
		"archive.concurrency":    "3",
		"storage.signed_url_ttl": "5m",
	}
	require.NoError(t, cfg.ApplyOverrides(func(k string) string { return env[k] }))
	assert.Equal(t, BackendS3, cfg.Storage.Backend)
	assert.Equal(t, "farm-data", cfg.Storage.Bucket)
	assert.False(t, cfg.Archive.ConvertJSON)
	assert.Equal(t, 3, cfg.Archive.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.Storage.SignedURLTTL)

	err := cfg.ApplyOverrides(func(k string) string {
		if k == "archive.max_depth" {
			return "deep"
		}
		return ""
	})
	assert.ErrorContains(t, err, "archive.max_depth")
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	assert.ErrorContains(t, err, "not found")

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)

	require.NoError(t, os.WriteFile(Path(dir), []byte(GenerateDefault()), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.True(t, cfg.Archive.ConvertJSON)
	assert.Equal(t, filepath.Join(dir, "assessvault.yml"), Path(dir))
}
