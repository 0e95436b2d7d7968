package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"assessvault/internal/archive"
	"assessvault/internal/config"
	"assessvault/internal/domain"
	"assessvault/internal/events"
	"assessvault/internal/logger"
	"assessvault/internal/metrics"
	"assessvault/internal/report"
	"assessvault/internal/repo"
	"assessvault/internal/storage"
)

const (
	HorseTableFilename = "horse-table.docx"
	ReportFilename     = "compliance-report.docx"
)

// ErrPathRequired is returned when an object path is missing.
var ErrPathRequired = errors.New("path required")

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Store    storage.Store
	Archiver *archive.Archiver
	Deleter  *archive.Deleter
	Log      logger.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config, store storage.Store, log logger.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.NewNop()
	}
	opts := archive.Options{
		MaxDepth:    cfg.Archive.MaxDepth,
		Concurrency: cfg.Archive.Concurrency,
		ConvertJSON: cfg.Archive.ConvertJSON,
	}
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Store:    store,
		Archiver: archive.NewArchiver(store, log, opts),
		Deleter:  archive.NewDeleter(store, log, opts),
		Log:      log,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// record appends an activity event. The operation it describes has already
// happened, so a failed write is only logged.
func (e Engine) record(ctx context.Context, evtType, folder, actorID string, payload events.Payload) {
	if e.DB == nil {
		return
	}
	w := e.Events
	w.Now = e.now
	if err := w.Append(ctx, nil, events.Entry{Type: evtType, Folder: folder, ActorID: actorID, Payload: payload}); err != nil {
		e.Log.WithError(err).Warn("activity event not recorded", map[string]any{"type": evtType, "folder": folder})
	}
}

// ListFolders returns the immediate children of prefix.
func (e Engine) ListFolders(ctx context.Context, prefix string) ([]storage.Entry, error) {
	entries, err := e.Store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	return entries, nil
}

// DownloadFolder builds a zip of folder and everything below it.
func (e Engine) DownloadFolder(ctx context.Context, folder, actorID string) (*archive.Result, error) {
	res, err := e.Archiver.Archive(ctx, folder)
	if err != nil {
		return nil, err
	}
	e.record(ctx, events.FolderDownloaded, storage.Clean(folder), actorID, events.Payload{
		"files":     len(res.Files),
		"skipped":   res.Skipped,
		"converted": res.Converted,
		"bytes":     len(res.Data),
	})
	return res, nil
}

// DeleteFolder removes folder recursively and reports what was deleted.
func (e Engine) DeleteFolder(ctx context.Context, folder, actorID string) (domain.FolderDeletion, error) {
	res, err := e.Deleter.Delete(ctx, folder)
	if err != nil {
		return res, err
	}
	e.record(ctx, events.FolderDeleted, res.Folder, actorID, events.Payload{"count": res.Count})
	return res, nil
}

// SignedURL is a time limited download link.
type SignedURL struct {
	URL       string        `json:"url"`
	ExpiresIn time.Duration `json:"-"`
}

// SignedURL issues a link for a single object. A zero ttl uses the
// configured default.
func (e Engine) SignedURL(ctx context.Context, key string, ttl time.Duration, actorID string) (SignedURL, error) {
	key = storage.Clean(key)
	if key == "" {
		return SignedURL{}, ErrPathRequired
	}
	if ttl <= 0 {
		ttl = e.Config.Storage.SignedURLTTL
	}
	url, err := e.Store.SignedURL(ctx, key, ttl)
	if err != nil {
		return SignedURL{}, err
	}
	e.record(ctx, events.SignedURLIssued, path.Dir(key), actorID, events.Payload{"path": key, "ttl_seconds": int(ttl.Seconds())})
	return SignedURL{URL: url, ExpiresIn: ttl}, nil
}

// Document is a rendered .docx ready to send.
type Document struct {
	Filename string
	Kind     report.PayloadKind
	Data     []byte
}

// GenerateHorseTable renders a horse list payload.
func (e Engine) GenerateHorseTable(ctx context.Context, data []byte, actorID string) (Document, error) {
	out, err := report.GenerateHorseTable(data)
	if err != nil {
		return Document{}, err
	}
	return e.generated(ctx, Document{Filename: HorseTableFilename, Kind: report.PayloadHorses, Data: out}, "", actorID), nil
}

// GenerateReport renders a compliance report payload.
func (e Engine) GenerateReport(ctx context.Context, data []byte, actorID string) (Document, error) {
	out, err := report.GenerateComplianceReport(data)
	if err != nil {
		return Document{}, err
	}
	return e.generated(ctx, Document{Filename: ReportFilename, Kind: report.PayloadReport, Data: out}, "", actorID), nil
}

// ConvertObject fetches a stored JSON object and renders whichever document
// its payload describes.
func (e Engine) ConvertObject(ctx context.Context, key, actorID string) (Document, error) {
	key = storage.Clean(key)
	if key == "" {
		return Document{}, ErrPathRequired
	}
	obj, err := e.Store.Get(ctx, key)
	if err != nil {
		return Document{}, err
	}
	out, kind, err := report.Generate(obj.Data)
	if err != nil {
		return Document{}, fmt.Errorf("convert %s: %w", key, err)
	}
	doc := Document{Filename: report.DocxName(path.Base(key)), Kind: kind, Data: out}
	return e.generated(ctx, doc, path.Dir(key), actorID), nil
}

func (e Engine) generated(ctx context.Context, doc Document, folder, actorID string) Document {
	metrics.DocumentsGenerated.WithLabelValues(doc.Kind.String()).Inc()
	e.record(ctx, events.DocumentGenerated, folder, actorID, events.Payload{
		"kind":     doc.Kind.String(),
		"filename": doc.Filename,
		"bytes":    len(doc.Data),
	})
	return doc
}

// Activity returns recent activity events, newest first.
func (e Engine) Activity(ctx context.Context, limit int, filter repo.EventFilter) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, limit, filter)
}

// CreateAPIKey stores a new key for actorID and returns it with the raw
// secret, which is not recoverable afterwards.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.APIKey{}, "", errors.New("actor id required")
	}
	secret := make([]byte, 24)
	if _, err := rand.Read(secret); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("generate key: %w", err)
	}
	raw := "av_" + hex.EncodeToString(secret)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("insert api key: %w", err)
	}
	w := e.Events
	w.Now = e.now
	if err := w.Append(ctx, tx, events.Entry{Type: events.APIKeyCreated, ActorID: actorID, Payload: events.Payload{"key_id": key.ID, "name": name}}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, raw, nil
}

// RevokeAPIKey deletes a key by id.
func (e Engine) RevokeAPIKey(ctx context.Context, id, actorID string) error {
	if err := e.Repo.DeleteAPIKey(ctx, id); err != nil {
		return err
	}
	e.record(ctx, events.APIKeyRevoked, "", actorID, events.Payload{"key_id": id})
	return nil
}
