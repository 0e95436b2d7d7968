package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"assessvault/internal/logger"
	"assessvault/internal/metrics"
	"assessvault/internal/report"
	"assessvault/internal/storage"
)

const (
	DefaultMaxDepth    = 32
	DefaultConcurrency = 8
)

// ErrFolderRequired is returned when no folder name is given.
var ErrFolderRequired = errors.New("folder name required")

// Options tune folder traversal.
type Options struct {
	MaxDepth    int
	Concurrency int
	ConvertJSON bool
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// Result is a built archive plus a summary of what went into it.
type Result struct {
	Filename  string
	Data      []byte
	Files     []string
	Dirs      []string
	Skipped   []string
	Converted int
}

// Archiver downloads a folder tree and packs it into a zip.
type Archiver struct {
	store storage.Store
	log   logger.Logger
	opts  Options
	now   func() time.Time
}

func NewArchiver(store storage.Store, log logger.Logger, opts Options) *Archiver {
	if log == nil {
		log = logger.NewNop()
	}
	return &Archiver{store: store, log: log, opts: opts.withDefaults(), now: time.Now}
}

type frame struct {
	remote string
	rel    string
	depth  int
}

type fileJob struct {
	remote string
	rel    string
}

type tally struct {
	mu        sync.Mutex
	skipped   []string
	converted int
}

func (t *tally) skip(p string) {
	t.mu.Lock()
	t.skipped = append(t.skipped, p)
	t.mu.Unlock()
}

func (t *tally) convert() {
	t.mu.Lock()
	t.converted++
	t.mu.Unlock()
}

// Archive walks root and returns a zip holding every reachable file at its
// path relative to root. Failed fetches and listings are logged and skipped.
func (a *Archiver) Archive(ctx context.Context, root string) (*Result, error) {
	root = storage.Clean(root)
	if root == "" {
		return nil, ErrFolderRequired
	}
	log := a.log.With(map[string]any{"folder": root})
	first, err := a.store.List(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	if len(first) == 0 {
		return nil, fmt.Errorf("folder %s: %w", root, storage.ErrNotFound)
	}

	m := NewManifest()
	t := &tally{}
	visited := map[string]bool{root: true}
	stack := []frame{{remote: root}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries := first
		if f.depth > 0 {
			entries, err = a.store.List(ctx, f.remote)
			if err != nil {
				log.Warn("skipping folder: list failed", map[string]any{"path": f.remote, "error": err.Error()})
				t.skip(f.rel + "/")
				continue
			}
		}

		var jobs []fileJob
		for _, e := range entries {
			rel := path.Join(f.rel, e.Name)
			if !e.IsFolder() {
				jobs = append(jobs, fileJob{remote: e.Path, rel: rel})
				continue
			}
			if visited[e.Path] {
				log.Warn("skipping folder: already visited", map[string]any{"path": e.Path})
				continue
			}
			visited[e.Path] = true
			if f.depth+1 > a.opts.MaxDepth {
				log.Warn("skipping folder: too deep", map[string]any{"path": e.Path, "max_depth": a.opts.MaxDepth})
				t.skip(rel + "/")
				continue
			}
			m.AddDir(rel)
			stack = append(stack, frame{remote: e.Path, rel: rel, depth: f.depth + 1})
		}
		if err := a.fetch(ctx, log, jobs, m, t); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := m.WriteZip(&buf, a.now()); err != nil {
		return nil, err
	}
	metrics.ArchiveBytes.Observe(float64(buf.Len()))
	log.Info("folder archived", map[string]any{"files": m.Len(), "skipped": len(t.skipped), "converted": t.converted})
	return &Result{
		Filename:  path.Base(root) + ".zip",
		Data:      buf.Bytes(),
		Files:     m.Files(),
		Dirs:      m.Dirs(),
		Skipped:   t.skipped,
		Converted: t.converted,
	}, nil
}

// fetch downloads sibling files concurrently into m. A converted name that
// matches a listed sibling, or another conversion that got there first, is
// not used; the JSON is kept under its own name instead.
func (a *Archiver) fetch(ctx context.Context, log logger.Logger, jobs []fileJob, m *Manifest, t *tally) error {
	listed := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		listed[job.rel] = true
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			obj, err := a.store.Get(gctx, job.remote)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn("skipping file: download failed", map[string]any{"path": job.remote, "error": err.Error()})
				metrics.ArchiveFiles.WithLabelValues("skipped").Inc()
				t.skip(job.rel)
				return nil
			}
			if c, ok := a.convert(log, job, obj, listed); ok {
				if m.AddFile(c.Name, c.Data) {
					t.convert()
					metrics.DocumentsGenerated.WithLabelValues(c.Kind.String()).Inc()
					metrics.ArchiveFiles.WithLabelValues("converted").Inc()
					metrics.ArchiveFiles.WithLabelValues("added").Inc()
					return nil
				}
				log.Warn("storing json verbatim: converted name taken", map[string]any{"path": job.remote, "name": c.Name})
			}
			if !m.AddFile(job.rel, obj.Data) {
				log.Warn("skipping file: duplicate path", map[string]any{"path": job.remote})
				metrics.ArchiveFiles.WithLabelValues("skipped").Inc()
				t.skip(job.rel)
				return nil
			}
			metrics.ArchiveFiles.WithLabelValues("added").Inc()
			return nil
		})
	}
	return g.Wait()
}

// convert renders a recognised JSON payload unless conversion is off or the
// .docx name belongs to a listed sibling.
func (a *Archiver) convert(log logger.Logger, job fileJob, obj storage.Object, listed map[string]bool) (report.Converted, bool) {
	if !a.opts.ConvertJSON {
		return report.Converted{}, false
	}
	c, ok, err := report.Convert(job.rel, obj.ContentType, obj.Data)
	switch {
	case err != nil:
		log.Warn("storing json verbatim: conversion failed", map[string]any{"path": job.remote, "error": err.Error()})
		return report.Converted{}, false
	case !ok:
		return report.Converted{}, false
	case listed[c.Name]:
		log.Warn("storing json verbatim: sibling has the converted name", map[string]any{"path": job.remote, "name": c.Name})
		return report.Converted{}, false
	}
	return c, true
}
