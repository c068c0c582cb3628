// Package loader discovers PDF files under a folder and extracts their text
// one page at a time.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/DreamCats/briefly/internal/chunk"
	"github.com/DreamCats/briefly/internal/logger"
)

// DefaultInclude matches every PDF below the folder.
var DefaultInclude = []string{"**/*.pdf"}

// LoadError reports a folder or file that could not be read. It aborts an
// index build before anything is written.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// PageReader returns the plain text of every page of one file, in page order.
type PageReader func(path string) ([]string, error)

// Loader turns a folder of PDFs into page documents.
type Loader struct {
	include []string
	exclude []string
	pages   PageReader
	log     logger.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithPatterns overrides the include and exclude doublestar patterns.
// Patterns are matched case-insensitively against folder-relative slash paths.
func WithPatterns(include, exclude []string) Option {
	return func(l *Loader) {
		if len(include) > 0 {
			l.include = include
		}
		l.exclude = exclude
	}
}

// WithPageReader replaces the PDF text extractor.
func WithPageReader(r PageReader) Option {
	return func(l *Loader) {
		if r != nil {
			l.pages = r
		}
	}
}

// WithLogger sets the logger used for per-file progress.
func WithLogger(log logger.Logger) Option {
	return func(l *Loader) { l.log = logger.OrNop(log) }
}

// New creates a loader reading PDFs with ReadPDFPages.
func New(opts ...Option) *Loader {
	l := &Loader{
		include: DefaultInclude,
		pages:   ReadPDFPages,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns one Document per page of every matching file, files sorted by
// relative path. An empty folder yields an empty slice.
func (l *Loader) Load(ctx context.Context, folder string) ([]chunk.Document, error) {
	files, err := l.discover(folder)
	if err != nil {
		return nil, err
	}

	docs := make([]chunk.Document, 0, len(files))
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		full := filepath.Join(folder, filepath.FromSlash(rel))
		pages, err := l.pages(full)
		if err != nil {
			return nil, &LoadError{Path: full, Err: err}
		}
		l.log.Debug("loaded document", "source", rel, "pages", len(pages))
		for i, text := range pages {
			docs = append(docs, chunk.Document{Source: rel, Page: i, Text: text})
		}
	}
	l.log.Info("documents loaded", "folder", folder, "files", len(files), "pages", len(docs))
	return docs, nil
}

func (l *Loader) discover(folder string) ([]string, error) {
	info, err := os.Stat(folder)
	if err != nil {
		return nil, &LoadError{Path: folder, Err: err}
	}
	if !info.IsDir() {
		return nil, &LoadError{Path: folder, Err: errors.New("not a directory")}
	}

	var files []string
	err = fs.WalkDir(os.DirFS(folder), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if l.matches(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, &LoadError{Path: folder, Err: err}
	}
	sort.Strings(files)
	return files, nil
}

func (l *Loader) matches(rel string) bool {
	lower := strings.ToLower(rel)
	for _, pattern := range l.exclude {
		if ok, _ := doublestar.Match(strings.ToLower(pattern), lower); ok {
			return false
		}
	}
	for _, pattern := range l.include {
		if ok, _ := doublestar.Match(strings.ToLower(pattern), lower); ok {
			return true
		}
	}
	return false
}
