package archive

import (
	"context"
	"errors"
	"fmt"

	"assessvault/internal/domain"
	"assessvault/internal/logger"
	"assessvault/internal/metrics"
	"assessvault/internal/storage"
)

// Deleter removes a folder tree, children before parents.
type Deleter struct {
	store    storage.Store
	log      logger.Logger
	maxDepth int
}

func NewDeleter(store storage.Store, log logger.Logger, opts Options) *Deleter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Deleter{store: store, log: log, maxDepth: opts.withDefaults().MaxDepth}
}

// Delete removes every file under root, then every folder deepest first,
// then root itself. Individual failures are logged and left out of the
// result; only listing root can fail the call.
func (d *Deleter) Delete(ctx context.Context, root string) (domain.FolderDeletion, error) {
	root = storage.Clean(root)
	res := domain.FolderDeletion{Folder: root, DeletedItems: []string{}}
	if root == "" {
		return res, ErrFolderRequired
	}
	log := d.log.With(map[string]any{"folder": root})
	first, err := d.store.List(ctx, root)
	if err != nil {
		return res, fmt.Errorf("list %s: %w", root, err)
	}
	if len(first) == 0 {
		return res, fmt.Errorf("folder %s: %w", root, storage.ErrNotFound)
	}

	// folders holds discovery order; a folder is always discovered after its parent.
	var folders []string
	visited := map[string]bool{root: true}
	stack := []frame{{remote: root}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			res.Count = len(res.DeletedItems)
			return res, err
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries := first
		if f.depth > 0 {
			entries, err = d.store.List(ctx, f.remote)
			if err != nil {
				log.Warn("skipping folder contents: list failed", map[string]any{"path": f.remote, "error": err.Error()})
				continue
			}
		}
		for _, e := range entries {
			if e.IsFolder() {
				if visited[e.Path] {
					continue
				}
				visited[e.Path] = true
				if f.depth+1 > d.maxDepth {
					log.Warn("skipping folder: too deep", map[string]any{"path": e.Path, "max_depth": d.maxDepth})
					continue
				}
				folders = append(folders, e.Path)
				stack = append(stack, frame{remote: e.Path, depth: f.depth + 1})
				continue
			}
			if err := d.store.Delete(ctx, e.Path); err != nil {
				log.Warn("file delete failed", map[string]any{"path": e.Path, "error": err.Error()})
				metrics.DeletedItems.WithLabelValues("file", "failed").Inc()
				continue
			}
			metrics.DeletedItems.WithLabelValues("file", "deleted").Inc()
			res.DeletedItems = append(res.DeletedItems, e.Path)
		}
	}

	for i := len(folders) - 1; i >= 0; i-- {
		d.deleteFolder(ctx, log, folders[i], &res)
	}
	d.deleteFolder(ctx, log, root, &res)
	res.Count = len(res.DeletedItems)
	log.Info("folder deleted", map[string]any{"count": res.Count})
	return res, nil
}

// deleteFolder records the folder when the store removed it or already
// dropped it along with its last child.
func (d *Deleter) deleteFolder(ctx context.Context, log logger.Logger, p string, res *domain.FolderDeletion) {
	err := d.store.Delete(ctx, p)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Warn("folder delete failed", map[string]any{"path": p, "error": err.Error()})
		metrics.DeletedItems.WithLabelValues("folder", "failed").Inc()
		return
	}
	metrics.DeletedItems.WithLabelValues("folder", "deleted").Inc()
	res.DeletedItems = append(res.DeletedItems, p)
}
