package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Activity event types.
const (
	FolderDownloaded  = "folder.downloaded"
	FolderDeleted     = "folder.deleted"
	SignedURLIssued   = "signed_url.issued"
	DocumentGenerated = "document.generated"
	APIKeyCreated     = "api_key.created"
	APIKeyRevoked     = "api_key.revoked"
)

type Payload map[string]any

// Entry is one row of the activity log before it is written.
type Entry struct {
	Type    string
	Folder  string
	ActorID string
	Payload Payload
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append writes e inside tx, or straight to DB when tx is nil.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	if e.Type == "" {
		return errors.New("event type required")
	}
	var ex execer
	switch {
	case tx != nil:
		ex = tx
	case w.DB != nil:
		ex = w.DB
	default:
		return errors.New("event writer has no database")
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	payload := e.Payload
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", e.Type, err)
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO events(ts,type,folder,actor_id,payload_json) VALUES (?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), e.Type, nullable(e.Folder), e.ActorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
