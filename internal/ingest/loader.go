// Package ingest loads course documents from a directory into the knowledge
// store. Ingestion is idempotent: courses already present in the catalog are
// skipped, so running it repeatedly over the same folder adds nothing twice.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/lectern-ai/lectern/internal/course"
)

// lockFileName guards a document directory against concurrent ingestion runs
// (for example a CLI ingest racing the server's startup load).
const lockFileName = ".lectern.lock"

// ErrIngestInProgress is returned when another process holds the directory
// ingestion lock.
var ErrIngestInProgress = errors.New("ingest: another ingestion is already running for this directory")

// Store is the subset of the knowledge store that ingestion needs.
type Store interface {
	HasCourse(ctx context.Context, title string) (bool, error)
	AddCourse(ctx context.Context, c course.Course) error
	AddChunks(ctx context.Context, chunks []course.Chunk) error
	Clear(ctx context.Context) error
}

// Result summarises a single ingestion run.
type Result struct {
	CoursesAdded   int
	CoursesSkipped int
	ChunksAdded    int
	Failed         int
	Duration       time.Duration
}

// Loader reads course documents, chunks them, and writes them to a Store.
type Loader struct {
	store   Store
	chunker *course.Chunker
	logger  *slog.Logger
}

// NewLoader creates a Loader. chunker must not be nil.
func NewLoader(store Store, chunker *course.Chunker, logger *slog.Logger) *Loader {
	return &Loader{
		store:   store,
		chunker: chunker,
		logger:  logger,
	}
}

// LoadDirectory ingests every .txt and .md document under dir, in lexical
// order. When clear is true the store is emptied first. Individual document
// failures are logged and counted but do not abort the run; only directory
// level problems (missing dir, held lock, failed clear) return an error.
func (l *Loader) LoadDirectory(ctx context.Context, dir string, clear bool) (Result, error) {
	start := time.Now()

	info, err := os.Stat(dir)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("ingest: %s is not a directory", dir)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return Result{}, fmt.Errorf("ingest: acquire lock: %w", err)
	}
	if !locked {
		return Result{}, ErrIngestInProgress
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			l.logger.Warn("failed to release ingestion lock", "error", err)
		}
	}()

	if clear {
		if err := l.store.Clear(ctx); err != nil {
			return Result{}, fmt.Errorf("ingest: clear store: %w", err)
		}
		l.logger.Info("cleared existing course data", "dir", dir)
	}

	docs, err := listDocuments(dir)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, path := range docs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		added, chunks, err := l.loadDocument(ctx, path)
		switch {
		case err != nil:
			res.Failed++
			l.logger.Error("failed to ingest document", "path", path, "error", err)
		case !added:
			res.CoursesSkipped++
		default:
			res.CoursesAdded++
			res.ChunksAdded += chunks
		}
	}

	res.Duration = time.Since(start)
	l.logger.Info("ingestion complete",
		"dir", dir,
		"courses_added", res.CoursesAdded,
		"courses_skipped", res.CoursesSkipped,
		"chunks_added", res.ChunksAdded,
		"failed", res.Failed,
		"duration", res.Duration)
	return res, nil
}

// loadDocument parses, chunks, and stores a single course document. It
// reports added=false when the course already exists in the catalog.
func (l *Loader) loadDocument(ctx context.Context, path string) (added bool, chunks int, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, 0, fmt.Errorf("read: %w", err)
	}

	c, cks, err := course.Process(string(raw), l.chunker)
	if err != nil {
		return false, 0, fmt.Errorf("parse: %w", err)
	}

	exists, err := l.store.HasCourse(ctx, c.Title)
	if err != nil {
		return false, 0, fmt.Errorf("check catalog: %w", err)
	}
	if exists {
		l.logger.Debug("course already ingested", "title", c.Title, "path", path)
		return false, 0, nil
	}

	if err := l.store.AddCourse(ctx, c); err != nil {
		return false, 0, fmt.Errorf("add course: %w", err)
	}
	if err := l.store.AddChunks(ctx, cks); err != nil {
		return false, 0, fmt.Errorf("add chunks: %w", err)
	}

	l.logger.Info("ingested course", "title", c.Title, "lessons", len(c.Lessons), "chunks", len(cks))
	return true, len(cks), nil
}

// listDocuments returns the ingestable files in dir sorted by name.
func listDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ingest: read dir %s: %w", dir, err)
	}

	var docs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".txt", ".md":
			docs = append(docs, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(docs)
	return docs, nil
}
