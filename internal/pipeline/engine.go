// Package pipeline wires configuration into the index, retrieval and
// generation components and exposes the in-process entry points.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/DreamCats/briefly/internal/chunk"
	"github.com/DreamCats/briefly/internal/config"
	"github.com/DreamCats/briefly/internal/embedding"
	"github.com/DreamCats/briefly/internal/extract"
	"github.com/DreamCats/briefly/internal/indexer"
	"github.com/DreamCats/briefly/internal/llm"
	"github.com/DreamCats/briefly/internal/loader"
	"github.com/DreamCats/briefly/internal/logger"
	"github.com/DreamCats/briefly/internal/progress"
	"github.com/DreamCats/briefly/internal/prompt"
	"github.com/DreamCats/briefly/internal/resilience"
	"github.com/DreamCats/briefly/internal/retrieval"
	"github.com/DreamCats/briefly/internal/store"
)

// Embedder is the embedding function shared by index builds and queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Engine holds the components for one configured store.
type Engine struct {
	cfg       *config.Config
	db        *store.DB
	embedder  Embedder
	loader    indexer.DocumentLoader
	chunker   *chunk.Chunker
	query     *prompt.Assembler
	fields    *prompt.Assembler
	progress  progress.Reporter
	log       logger.Logger
	judge     llm.Generator
	generator llm.Generator

	genOnce sync.Once
	genErr  error
}

// Option customizes an Engine.
type Option func(*Engine)

// WithEmbedder replaces the configured embedding provider.
func WithEmbedder(e Embedder) Option {
	return func(en *Engine) { en.embedder = e }
}

// WithGenerator replaces the configured completion provider.
func WithGenerator(g llm.Generator) Option {
	return func(en *Engine) { en.generator = g }
}

// WithJudge sets the model used by Evaluate. It defaults to the generator.
func WithJudge(g llm.Generator) Option {
	return func(en *Engine) { en.judge = g }
}

// WithLoader replaces the PDF folder loader.
func WithLoader(l indexer.DocumentLoader) Option {
	return func(en *Engine) { en.loader = l }
}

// WithProgress reports index build progress.
func WithProgress(p progress.Reporter) Option {
	return func(en *Engine) { en.progress = p }
}

// WithLogger sets the logger handed to every component.
func WithLogger(l logger.Logger) Option {
	return func(en *Engine) { en.log = logger.OrNop(l) }
}

// New opens the store at cfg.Store.Path and builds the components. The
// completion provider is created on first use so index builds work
// without generation credentials.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	e := &Engine{cfg: cfg, log: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}

	chunker, err := chunk.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}
	e.chunker = chunker

	if e.query, err = prompt.Load(cfg.Retrieval.Template, prompt.QueryTemplate); err != nil {
		return nil, err
	}
	if e.fields, err = prompt.Load(cfg.Extraction.Template, prompt.ExtractionTemplate); err != nil {
		return nil, err
	}

	if e.embedder == nil {
		svc, err := embedding.NewService(&cfg.Embedding,
			embedding.WithPolicy(resilience.FromConfig(cfg.Retry, cfg.Embedding.Timeout)),
			embedding.WithLogger(e.log.With("component", "embedding")),
		)
		if err != nil {
			return nil, err
		}
		e.embedder = svc
	}
	if e.loader == nil {
		e.loader = loader.New(
			loader.WithPatterns(cfg.Indexer.Include, cfg.Indexer.Exclude),
			loader.WithLogger(e.log.With("component", "loader")),
		)
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	e.db = db
	return e, nil
}

// Close releases the store.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config { return e.cfg }

func (e *Engine) binding() store.Binding {
	return store.Binding{
		Provider:  e.cfg.Embedding.Provider,
		Model:     e.cfg.Embedding.Model,
		Dimension: e.cfg.Embedding.Dimensions,
	}
}

func (e *Engine) gen() (llm.Generator, error) {
	e.genOnce.Do(func() {
		if e.generator != nil {
			return
		}
		e.generator, e.genErr = llm.NewService(&e.cfg.Generation,
			llm.WithPolicy(resilience.FromConfig(e.cfg.Retry, e.cfg.Generation.Timeout)),
			llm.WithLogger(e.log.With("component", "llm")),
		)
	})
	return e.generator, e.genErr
}

// BuildIndex synchronizes the configured collection with folder.
func (e *Engine) BuildIndex(ctx context.Context, folder string, opts ...indexer.BuildOption) (*indexer.Result, error) {
	syncer, err := indexer.New(e.db, e.loader, e.chunker, e.embedder, indexer.Options{
		Collection:  e.cfg.Store.Collection,
		Binding:     e.binding(),
		BatchSize:   e.cfg.Embedding.BatchSize,
		Workers:     e.cfg.Indexer.MaxWorkers,
		LockTimeout: e.cfg.Indexer.LockTimeout,
		Progress:    e.progress,
		Logger:      e.log.With("component", "indexer"),
	})
	if err != nil {
		return nil, err
	}
	return syncer.Build(ctx, folder, opts...)
}

// retriever opens the collection for reading. A collection that was never
// built searches as empty; one built with another embedding function is
// rejected.
func (e *Engine) retriever(ctx context.Context, topK int) (*retrieval.Retriever, error) {
	var index retrieval.Index = emptyIndex{}
	coll, err := e.db.OpenCollection(ctx, e.cfg.Store.Collection)
	switch {
	case errors.Is(err, store.ErrCollectionNotFound):
		e.log.Warn("collection has not been built", "collection", e.cfg.Store.Collection)
	case err != nil:
		return nil, err
	default:
		if b := coll.Binding(); !b.Compatible(e.binding()) {
			return nil, fmt.Errorf("collection %s built with %s, configured %s: %w",
				coll.Name(), b, e.binding(), store.ErrBindingMismatch)
		}
		index = coll
	}
	return retrieval.New(index, e.embedder,
		retrieval.WithTopK(topK),
		retrieval.WithLogger(e.log.With("component", "retrieval")),
	), nil
}

type emptyIndex struct{}

func (emptyIndex) Search(context.Context, []float32, int) ([]store.ScoredEntry, error) {
	return nil, nil
}

func (emptyIndex) Count(context.Context) (int, error) { return 0, nil }

// FieldSpec returns the configured field spec file, or the built-in set.
func (e *Engine) FieldSpec() (extract.FieldSpec, error) {
	if e.cfg.Extraction.FieldsFile == "" {
		return extract.DefaultFieldSpec(), nil
	}
	return extract.LoadFieldSpec(e.cfg.Extraction.FieldsFile)
}

// ExtractOption adjusts a single Extract call.
type ExtractOption func(*extract.Options)

// WithWorkers overrides extraction.workers.
func WithWorkers(n int) ExtractOption {
	return func(o *extract.Options) {
		if n > 0 {
			o.Workers = n
		}
	}
}

// Extract answers every field of spec against the collection.
func (e *Engine) Extract(ctx context.Context, spec extract.FieldSpec, opts ...ExtractOption) (*extract.Report, error) {
	gen, err := e.gen()
	if err != nil {
		return nil, err
	}
	retr, err := e.retriever(ctx, e.cfg.Extraction.TopK)
	if err != nil {
		return nil, err
	}
	o := extract.Options{
		Persona:         e.cfg.Extraction.Persona,
		TopK:            e.cfg.Extraction.TopK,
		MinScore:        float32(e.cfg.Extraction.MinScore),
		NoContextAnswer: e.cfg.Extraction.NoContextAnswer,
		Workers:         e.cfg.Extraction.Workers,
		Logger:          e.log.With("component", "extract"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return extract.New(retr, gen, e.fields, o).Run(ctx, spec)
}

// Stats describes the store and the configured collection.
type Stats struct {
	Path        string                 `json:"path"`
	SizeBytes   int64                  `json:"size_bytes"`
	Collection  string                 `json:"collection"`
	Binding     store.Binding          `json:"binding"`
	Built       bool                   `json:"built"`
	Entries     int                    `json:"entries"`
	Collections []store.CollectionInfo `json:"collections"`
}

// Stats reports entry counts and the embedding binding.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	dbStats, err := e.db.Stats(ctx)
	if err != nil {
		return nil, err
	}
	infos, err := e.db.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		Path:        e.db.Path(),
		SizeBytes:   dbStats.SizeBytes,
		Collection:  e.cfg.Store.Collection,
		Binding:     e.binding(),
		Collections: infos,
	}
	for _, info := range infos {
		if info.Name == st.Collection {
			st.Built = true
			st.Binding = info.Binding
			st.Entries = info.Count
		}
	}
	return st, nil
}
