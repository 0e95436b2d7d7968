package archive

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"
)

// Manifest collects archive entries keyed by relative path. It is safe for
// concurrent use; the written archive is ordered by path, not insertion.
type Manifest struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]struct{}
}

func NewManifest() *Manifest {
	return &Manifest{
		files: map[string][]byte{},
		dirs:  map[string]struct{}{},
	}
}

// AddFile stores content at path. It reports false and leaves the manifest
// unchanged when path is already taken.
func (m *Manifest) AddFile(path string, content []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.files[path]; taken {
		return false
	}
	m.files[path] = content
	return true
}

// AddDir records an explicit directory entry.
func (m *Manifest) AddDir(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[strings.TrimSuffix(path, "/")+"/"] = struct{}{}
}

// Files returns the file paths in sorted order.
func (m *Manifest) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.files)
}

// Dirs returns the directory entries (with trailing slash) in sorted order.
func (m *Manifest) Dirs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.dirs)
}

func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// WriteZip writes every directory and file entry to w, sorted by path.
func (m *Manifest) WriteZip(w io.Writer, modTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := append(sortedKeys(m.dirs), sortedKeys(m.files)...)
	sort.Strings(names)

	zw := zip.NewWriter(w)
	for _, name := range names {
		hdr := &zip.FileHeader{Name: name, Modified: modTime}
		content, isFile := m.files[name]
		if isFile {
			hdr.Method = zip.Deflate
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("zip header %s: %w", name, err)
		}
		if !isFile {
			continue
		}
		if _, err := fw.Write(content); err != nil {
			return fmt.Errorf("zip write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("zip close: %w", err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
