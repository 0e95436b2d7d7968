package server

import (
	"encoding/json"
	"time"

	"assessvault/internal/domain"
	"assessvault/internal/storage"
)

type EntryResponse struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Kind        string `json:"kind" enum:"file,folder"`
	Size        *int64 `json:"size,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty" format:"date-time"`
}

type FolderListResponse struct {
	Prefix string          `json:"prefix"`
	Items  []EntryResponse `json:"items"`
}

type DeleteFolderResponse struct {
	Success      bool     `json:"success"`
	Message      string   `json:"message"`
	DeletedItems []string `json:"deletedItems"`
	Count        int      `json:"count"`
}

type SignedURLResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expiresIn" doc:"Seconds until the URL expires"`
}

type EventResponse struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts" format:"date-time"`
	Type    string         `json:"type"`
	Folder  string         `json:"folder,omitempty"`
	ActorID string         `json:"actor_id"`
	Payload map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Source      string   `json:"source" enum:"jwt,api_key"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

// Conversion helpers

func entryResponse(e storage.Entry) EntryResponse {
	res := EntryResponse{Name: e.Name, Path: e.Path, Kind: e.Kind.String()}
	if e.File != nil {
		size := e.File.Size
		res.Size = &size
		res.ContentType = e.File.ContentType
		if !e.File.UpdatedAt.IsZero() {
			res.UpdatedAt = e.File.UpdatedAt.UTC().Format(time.RFC3339)
		}
	}
	return res
}

func deletionResponse(d domain.FolderDeletion) DeleteFolderResponse {
	return DeleteFolderResponse{
		Success:      true,
		Message:      "Folder " + d.Folder + " deleted",
		DeletedItems: nonNilSlice(d.DeletedItems),
		Count:        d.Count,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:      e.ID,
		TS:      e.TS,
		Type:    e.Type,
		Folder:  e.Folder,
		ActorID: e.ActorID,
		Payload: decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
