package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessvault/internal/config"
	"assessvault/internal/db"
	"assessvault/internal/engine"
	"assessvault/internal/events"
	"assessvault/internal/logger"
	"assessvault/internal/migrate"
	"assessvault/internal/report"
	"assessvault/internal/repo"
	"assessvault/internal/storage"
)

const horses = `[
  {"name":"Blaze","breed":"Arab","age":7,"sex":"Mare","color":"Bay","timeOnFarm":2,"timeUnit":"years","isHorse":true,"bcsScore":3,"notes":""},
  {"name":"Jack","isHorse":false,"bcsScore":4,"sex":"Gelding"}
]`

const complianceReport = `{
  "metadata":{"farmName":"Green Acres","vetName":"Dr. Lee","visitDate":"2024-05-01"},
  "nonCompliantFindings":{"sections":[{"id":2,"title":"Shelter","subsections":[
    {"name":"2.1","requirements":[{"text":"Dry lying area","findings":"Bedding wet"}]}
  ]}]},
  "sideNotes":"bring farrier"
}`

type testEnv struct {
	Engine engine.Engine
	Store  *storage.Memory
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := storage.NewMemory("https://files.test")
	ctx := context.Background()
	for key, body := range map[string]string{
		"green-acres/horses.json":        horses,
		"green-acres/visit/report.json":  complianceReport,
		"green-acres/visit/photo.jpg":    "jpeg",
		"green-acres/misc/settings.json": `{"theme":"dark"}`,
	} {
		if err := store.Put(ctx, key, "", []byte(body)); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}
	eng := engine.New(conn, config.Default(), store, logger.NewTestLogger(t))
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Store: store, Ctx: ctx}
}

func TestListFolders(t *testing.T) {
	env := newTestEnv(t)
	entries, err := env.Engine.ListFolders(env.Ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || !entries[0].IsFolder() || entries[0].Name != "green-acres" {
		t.Fatalf("unexpected root listing: %+v", entries)
	}
}

func TestDownloadFolderRecordsActivity(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.DownloadFolder(env.Ctx, "green-acres", "vet-1")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	assert.Equal(t, "green-acres.zip", res.Filename)
	assert.Equal(t, []string{"horses.docx", "misc/settings.json", "visit/photo.jpg", "visit/report.docx"}, res.Files)
	assert.Equal(t, 2, res.Converted)

	evts, err := env.Engine.Activity(env.Ctx, 10, repo.EventFilter{Type: events.FolderDownloaded})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "green-acres", evts[0].Folder)
	assert.Equal(t, "vet-1", evts[0].ActorID)
	assert.Equal(t, "2024-01-01T00:00:00Z", evts[0].TS)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(evts[0].Payload), &payload))
	assert.EqualValues(t, 4, payload["files"])
}

func TestDownloadMissingFolder(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.DownloadFolder(env.Ctx, "nowhere", "vet-1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	evts, err := env.Engine.Activity(env.Ctx, 10, repo.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, evts)
}

func TestDeleteFolder(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.DeleteFolder(env.Ctx, "green-acres/visit", "vet-1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	assert.Equal(t, "green-acres/visit", res.Folder)
	assert.ElementsMatch(t, []string{"green-acres/visit/photo.jpg", "green-acres/visit/report.json", "green-acres/visit"}, res.DeletedItems)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, []string{"green-acres/horses.json", "green-acres/misc/settings.json"}, env.Store.Keys())

	evts, err := env.Engine.Activity(env.Ctx, 10, repo.EventFilter{Folder: "green-acres/visit"})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, events.FolderDeleted, evts[0].Type)
}

func TestSignedURLDefaultsTTL(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.SignedURL(env.Ctx, "green-acres/visit/photo.jpg", 0, "vet-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	assert.Equal(t, 60*time.Second, u.ExpiresIn)
	assert.True(t, strings.HasPrefix(u.URL, "https://files.test/green-acres/visit/photo.jpg?expires="), u.URL)

	_, err = env.Engine.SignedURL(env.Ctx, "green-acres/missing.jpg", time.Minute, "vet-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = env.Engine.SignedURL(env.Ctx, " / ", time.Minute, "vet-1")
	assert.ErrorIs(t, err, engine.ErrPathRequired)
}

func TestGenerateDocuments(t *testing.T) {
	env := newTestEnv(t)
	doc, err := env.Engine.GenerateHorseTable(env.Ctx, []byte(horses), "vet-1")
	require.NoError(t, err)
	assert.Equal(t, engine.HorseTableFilename, doc.Filename)
	assert.True(t, strings.HasPrefix(string(doc.Data), "PK"))

	doc, err = env.Engine.GenerateReport(env.Ctx, []byte(complianceReport), "vet-1")
	require.NoError(t, err)
	assert.Equal(t, report.PayloadReport, doc.Kind)

	_, err = env.Engine.GenerateReport(env.Ctx, []byte(`{"metadata":{}}`), "vet-1")
	assert.ErrorIs(t, err, report.ErrInvalidPayload)

	evts, err := env.Engine.Activity(env.Ctx, 10, repo.EventFilter{Type: events.DocumentGenerated})
	require.NoError(t, err)
	assert.Len(t, evts, 2)
}

func TestConvertObject(t *testing.T) {
	env := newTestEnv(t)
	doc, err := env.Engine.ConvertObject(env.Ctx, "green-acres/visit/report.json", "vet-1")
	require.NoError(t, err)
	assert.Equal(t, "report.docx", doc.Filename)
	assert.Equal(t, report.PayloadReport, doc.Kind)

	_, err = env.Engine.ConvertObject(env.Ctx, "green-acres/misc/settings.json", "vet-1")
	assert.ErrorIs(t, err, report.ErrInvalidPayload)
	_, err = env.Engine.ConvertObject(env.Ctx, "green-acres/nope.json", "vet-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	key, raw, err := env.Engine.CreateAPIKey(env.Ctx, "vet-1", "laptop")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	assert.True(t, strings.HasPrefix(raw, "av_"))
	assert.Equal(t, repo.HashAPIKey(raw), key.KeyHash)

	got, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(raw))
	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)
	assert.Equal(t, "laptop", got.Name)

	keys, err := env.Engine.Repo.ListAPIKeys(env.Ctx, "vet-1")
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, env.Engine.RevokeAPIKey(env.Ctx, key.ID, "vet-1"))
	assert.ErrorIs(t, env.Engine.RevokeAPIKey(env.Ctx, key.ID, "vet-1"), repo.ErrNotFound)
	_, err = env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(raw))
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, _, err = env.Engine.CreateAPIKey(env.Ctx, " ", "")
	assert.Error(t, err)
}
