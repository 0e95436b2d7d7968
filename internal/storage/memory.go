package storage

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store. Folders are implied by key prefixes.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]Object
	baseURL string
	now     func() time.Time
}

func NewMemory(baseURL string) *Memory {
	if baseURL == "" {
		baseURL = "memory://assessvault"
	}
	return &Memory{
		objects: map[string]Object{},
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

func (m *Memory) List(ctx context.Context, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix = Clean(prefix)
	scope := ""
	if prefix != "" {
		scope = prefix + "/"
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	files := map[string]*FileInfo{}
	folders := map[string]struct{}{}
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, scope) {
			continue
		}
		rest := strings.TrimPrefix(key, scope)
		if name, _, nested := strings.Cut(rest, "/"); nested {
			folders[name] = struct{}{}
			continue
		}
		files[rest] = &FileInfo{Size: int64(len(obj.Data)), ContentType: obj.ContentType}
	}
	entries := make([]Entry, 0, len(files)+len(folders))
	for name := range folders {
		entries = append(entries, Classify(prefix, name, nil))
	}
	for name, info := range files {
		entries = append(entries, Classify(prefix, name, info))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (m *Memory) Get(ctx context.Context, key string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[Clean(key)]
	if !ok {
		return Object{}, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return obj, nil
}

func (m *Memory) Put(ctx context.Context, key, contentType string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key = Clean(key)
	if key == "" {
		return fmt.Errorf("put: key required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Key: key, ContentType: contentType, Data: append([]byte(nil), data...)}
	return nil
}

// Delete removes a single object. Folders have no object of their own, so
// deleting one reports ErrNotFound once its children are gone.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key = Clean(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	}
	delete(m.objects, key)
	return nil
}

func (m *Memory) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key = Clean(key)
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("sign %s: %w", key, ErrNotFound)
	}
	expires := m.now().Add(ttl).Unix()
	return fmt.Sprintf("%s/%s?expires=%d", m.baseURL, (&url.URL{Path: key}).EscapedPath(), expires), nil
}

// Keys returns every stored key in sorted order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
