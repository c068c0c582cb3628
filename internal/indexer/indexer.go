// Package indexer keeps a persisted collection in sync with a folder of
// documents. Only chunks whose id is not yet stored are embedded and
// inserted; existing entries are never touched outside a reset.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/DreamCats/briefly/internal/chunk"
	"github.com/DreamCats/briefly/internal/logger"
	"github.com/DreamCats/briefly/internal/progress"
	"github.com/DreamCats/briefly/internal/store"
)

// ErrIndexLocked means another build holds the writer lock.
var ErrIndexLocked = errors.New("index is locked by another build")

// DocumentLoader reads a folder into page documents.
type DocumentLoader interface {
	Load(ctx context.Context, folder string) ([]chunk.Document, error)
}

// Embedder turns chunk texts into vectors, one per text, in order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Result summarizes one build.
type Result struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Inserted  int           `json:"inserted"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration_ns"`
}

// Options configure a Synchronizer.
type Options struct {
	Collection string
	Binding    store.Binding
	// BatchSize is the number of chunks per embedding call.
	BatchSize int
	// Workers bounds embedding calls in flight.
	Workers int
	// LockTimeout > 0 waits for a busy writer lock instead of failing fast.
	LockTimeout time.Duration
	Progress    progress.Reporter
	Logger      logger.Logger
}

// Synchronizer handles the complete index build pipeline.
type Synchronizer struct {
	db       *store.DB
	loader   DocumentLoader
	chunker  *chunk.Chunker
	embedder Embedder
	opts     Options
	progress progress.Reporter
	log      logger.Logger
}

// New creates a synchronizer writing to the named collection in db.
func New(db *store.DB, loader DocumentLoader, chunker *chunk.Chunker, embedder Embedder, opts Options) (*Synchronizer, error) {
	if db == nil || loader == nil || chunker == nil || embedder == nil {
		return nil, errors.New("indexer: db, loader, chunker and embedder are required")
	}
	if opts.Collection == "" {
		return nil, errors.New("indexer: collection name is required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Synchronizer{
		db:       db,
		loader:   loader,
		chunker:  chunker,
		embedder: embedder,
		opts:     opts,
		progress: progress.OrNop(opts.Progress),
		log:      logger.OrNop(opts.Logger),
	}, nil
}

type buildOptions struct {
	reset bool
}

// BuildOption adjusts a single Build call.
type BuildOption func(*buildOptions)

// Reset rebuilds the collection from scratch: every chunk is re-embedded
// and the stored entries are replaced in one transaction. The collection
// may be rebound to a different embedding function this way.
func Reset() BuildOption {
	return func(o *buildOptions) { o.reset = true }
}

// Build loads folder, chunks it and inserts the chunks the collection does
// not hold yet. On any error nothing is written.
func (s *Synchronizer) Build(ctx context.Context, folder string, opts ...BuildOption) (*Result, error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}
	start := time.Now()
	log := s.log.With("collection", s.opts.Collection)

	// Load and chunk before taking the lock; both are read-only.
	docs, err := s.loader.Load(ctx, folder)
	if err != nil {
		return nil, err
	}
	chunks := chunk.AssignIDs(s.chunker.Split(docs))
	log.Info("documents loaded", "documents", len(docs), "chunks", len(chunks))

	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Under reset the stored entries are ignored and swapped out in the
	// final transaction, so a failed build leaves them in place.
	existing := map[string]struct{}{}
	var coll *store.Collection
	if !bo.reset {
		if coll, err = s.db.Collection(ctx, s.opts.Collection, s.opts.Binding); err != nil {
			return nil, err
		}
		if existing, err = coll.IDs(ctx); err != nil {
			return nil, err
		}
	}

	fresh := partition(chunks, existing)
	res := &Result{
		Documents: len(docs),
		Chunks:    len(chunks),
		Inserted:  len(fresh),
		Skipped:   len(chunks) - len(fresh),
	}
	if len(fresh) == 0 {
		if bo.reset {
			if err := s.db.DropCollection(ctx, s.opts.Collection); err != nil {
				return nil, fmt.Errorf("reset collection: %w", err)
			}
			log.Info("collection cleared")
		}
		res.Duration = time.Since(start)
		log.Info("index up to date", "existing", len(existing))
		return res, nil
	}

	vectors, err := s.embed(ctx, fresh)
	if err != nil {
		return nil, err
	}

	entries := make([]store.Entry, len(fresh))
	for i, c := range fresh {
		entries[i] = store.Entry{ID: c.ID(), Vector: vectors[i], Text: c.Text, Metadata: c.Metadata}
	}
	if bo.reset {
		if _, err := s.db.ReplaceCollection(ctx, s.opts.Collection, s.opts.Binding, entries); err != nil {
			return nil, fmt.Errorf("replace collection: %w", err)
		}
		log.Info("collection replaced")
	} else if err := coll.InsertBatch(ctx, entries); err != nil {
		return nil, fmt.Errorf("insert chunks: %w", err)
	}

	res.Duration = time.Since(start)
	log.Info("index updated", "inserted", res.Inserted, "skipped", res.Skipped,
		"duration", res.Duration.Round(time.Millisecond))
	return res, nil
}

// partition keeps chunks whose id is neither stored nor seen earlier in
// this run.
func partition(chunks []chunk.Chunk, existing map[string]struct{}) []chunk.Chunk {
	seen := make(map[string]struct{}, len(chunks))
	var fresh []chunk.Chunk
	for _, c := range chunks {
		id := c.ID()
		if _, ok := existing[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		fresh = append(fresh, c)
	}
	return fresh
}

func (s *Synchronizer) embed(ctx context.Context, chunks []chunk.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	s.progress.Start(len(chunks), "embedding")
	defer s.progress.Finish()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for from := 0; from < len(chunks); from += s.opts.BatchSize {
		to := min(from+s.opts.BatchSize, len(chunks))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			texts := make([]string, to-from)
			for i, c := range chunks[from:to] {
				texts[i] = c.Text
			}
			batch, err := s.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			if len(batch) != len(texts) {
				return fmt.Errorf("chunks %d-%d: expected %d vectors, got %d", from, to, len(texts), len(batch))
			}
			copy(vectors[from:to], batch)
			s.progress.Add(len(texts))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	return vectors, nil
}

// lock takes the writer lock next to the database file.
func (s *Synchronizer) lock(ctx context.Context) (func(), error) {
	fl := flock.New(s.db.Path() + ".lock")

	var (
		ok  bool
		err error
	)
	if s.opts.LockTimeout > 0 {
		lctx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
		ok, err = fl.TryLockContext(lctx, 50*time.Millisecond)
		cancel()
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
	} else {
		ok, err = fl.TryLock()
	}
	if err != nil {
		return nil, fmt.Errorf("acquire index lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", fl.Path(), ErrIndexLocked)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.log.Warn("release index lock", "error", err)
		}
	}, nil
}
