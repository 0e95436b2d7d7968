package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// Kind distinguishes files from folders in a listing.
type Kind int

const (
	KindFile Kind = iota
	KindFolder
)

func (k Kind) String() string {
	if k == KindFolder {
		return "folder"
	}
	return "file"
}

// FileInfo is the metadata a store reports for a stored object.
type FileInfo struct {
	Size        int64
	ContentType string
	ETag        string
	UpdatedAt   time.Time
}

// Entry is one child of a listed prefix.
type Entry struct {
	Name string
	Path string
	Kind Kind
	File *FileInfo
}

func (e Entry) IsFolder() bool { return e.Kind == KindFolder }

// Classify builds an Entry under parent. Entries that carry file metadata
// are files; entries without metadata are folders.
func Classify(parent, name string, info *FileInfo) Entry {
	e := Entry{Name: name, Path: Join(parent, name), Kind: KindFolder}
	if info != nil {
		e.Kind = KindFile
		e.File = info
	}
	return e
}

// Object is a fully buffered stored object.
type Object struct {
	Key         string
	ContentType string
	Data        []byte
}

// Store is the object storage surface used by the service.
type Store interface {
	// List returns the immediate children of prefix. An empty prefix lists the bucket root.
	List(ctx context.Context, prefix string) ([]Entry, error)
	Get(ctx context.Context, key string) (Object, error)
	Put(ctx context.Context, key, contentType string, data []byte) error
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Join builds a slash separated key, ignoring blank parts.
func Join(parts ...string) string {
	var kept []string
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), "/")
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}
	return path.Join(kept...)
}

// Clean normalises a user supplied key or prefix.
func Clean(key string) string {
	return Join(key)
}
