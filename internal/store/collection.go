package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DreamCats/briefly/internal/chunk"
)

var (
	// ErrBindingMismatch means a collection was built with a different
	// embedding provider, model or dimension than the one in use.
	ErrBindingMismatch = errors.New("embedding binding mismatch")
	// ErrCollectionNotFound is returned when opening a collection that does not exist.
	ErrCollectionNotFound = errors.New("collection not found")
)

// Binding identifies the embedding function a collection was built with.
// Dimension 0 means not yet known.
type Binding struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

func (b Binding) String() string {
	return fmt.Sprintf("%s/%s (dim %d)", b.Provider, b.Model, b.Dimension)
}

// Compatible reports whether vectors from o can be compared with vectors
// from b. Dimensions only count when both sides know theirs.
func (b Binding) Compatible(o Binding) bool {
	if b.Provider != o.Provider || b.Model != o.Model {
		return false
	}
	return b.Dimension == 0 || o.Dimension == 0 || b.Dimension == o.Dimension
}

// Entry is one persisted chunk.
type Entry struct {
	ID        string
	Vector    []float32
	Text      string
	Metadata  chunk.Metadata
	CreatedAt time.Time
}

// CollectionInfo describes a stored collection.
type CollectionInfo struct {
	Name      string    `json:"name"`
	Binding   Binding   `json:"binding"`
	CreatedAt time.Time `json:"created_at"`
	Count     int       `json:"count"`
}

// Collection is a named set of entries bound to one embedding function.
type Collection struct {
	db   *DB
	name string

	mu      sync.RWMutex
	binding Binding
}

// Collection opens the named collection for writing with binding. A
// collection that does not exist yet is created by its first InsertBatch,
// so nothing is persisted until vectors are. An existing collection must
// match the provider and model; dimensions must match when both sides know
// theirs.
func (db *DB) Collection(ctx context.Context, name string, binding Binding) (*Collection, error) {
	existing, err := db.collectionInfo(ctx, name)
	switch {
	case errors.Is(err, ErrCollectionNotFound):
		return &Collection{db: db, name: name, binding: binding}, nil
	case err != nil:
		return nil, err
	}

	stored := existing.Binding
	if !stored.Compatible(binding) {
		return nil, fmt.Errorf("collection %s built with %s, configured %s: %w", name, stored, binding, ErrBindingMismatch)
	}
	return &Collection{db: db, name: name, binding: stored}, nil
}

// ReplaceCollection swaps the content of the named collection for entries
// and rebinds it to binding, in one transaction. On error the previous
// content is kept. No entries leaves no collection behind.
func (db *DB) ReplaceCollection(ctx context.Context, name string, binding Binding, entries []Entry) (*Collection, error) {
	c := &Collection{db: db, name: name, binding: binding}
	if err := c.write(ctx, entries, true); err != nil {
		return nil, err
	}
	return c, nil
}

// OpenCollection opens an existing collection with whatever binding it holds.
func (db *DB) OpenCollection(ctx context.Context, name string) (*Collection, error) {
	info, err := db.collectionInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Collection{db: db, name: name, binding: info.Binding}, nil
}

// DropCollection deletes a collection and all its entries. Dropping a
// missing collection is not an error.
func (db *DB) DropCollection(ctx context.Context, name string) error {
	tx, err := db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteCollection(ctx, tx, name); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit drop: %w", err)
	}
	return nil
}

func deleteCollection(ctx context.Context, tx *sql.Tx, name string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE collection = ?", name); err != nil {
		return fmt.Errorf("failed to delete entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// ListCollections returns every collection with its entry count.
func (db *DB) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := db.sqlDB.QueryContext(ctx, `
		SELECT c.name, c.embedding_provider, c.embedding_model, c.dimension, c.created_at,
		       (SELECT COUNT(*) FROM entries e WHERE e.collection = c.name)
		FROM collections c
		ORDER BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var infos []CollectionInfo
	for rows.Next() {
		info, err := scanCollectionInfo(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return infos, nil
}

func (db *DB) collectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	row := db.sqlDB.QueryRowContext(ctx, `
		SELECT c.name, c.embedding_provider, c.embedding_model, c.dimension, c.created_at,
		       (SELECT COUNT(*) FROM entries e WHERE e.collection = c.name)
		FROM collections c
		WHERE c.name = ?`, name)
	info, err := scanCollectionInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}
	return info, err
}

func scanCollectionInfo(row rowScanner) (*CollectionInfo, error) {
	var (
		info    CollectionInfo
		created string
	)
	if err := row.Scan(&info.Name, &info.Binding.Provider, &info.Binding.Model,
		&info.Binding.Dimension, &created, &info.Count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan collection: %w", err)
	}
	ts, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	info.CreatedAt = ts
	return &info, nil
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Binding returns the embedding binding, including a dimension learned
// from the first insert.
func (c *Collection) Binding() Binding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.binding
}

// Info returns the stored description of the collection.
func (c *Collection) Info(ctx context.Context) (*CollectionInfo, error) {
	return c.db.collectionInfo(ctx, c.name)
}

// IDs returns the set of entry ids without loading vectors or text.
func (c *Collection) IDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := c.db.sqlDB.QueryContext(ctx, "SELECT id FROM entries WHERE collection = ?", c.name)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return ids, nil
}

// InsertBatch adds entries in a single transaction, creating the
// collection row on first use. Entries are never replaced: an id already
// present fails the whole batch and nothing is written.
func (c *Collection) InsertBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return c.write(ctx, entries, false)
}

func (c *Collection) write(ctx context.Context, entries []Entry, replace bool) error {
	dim := c.Binding().Dimension
	for i, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry %d has no id", i)
		}
		if len(e.Vector) == 0 {
			return fmt.Errorf("cannot insert empty vector for %s", e.ID)
		}
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("entry %s has dimension %d, collection uses %d: %w", e.ID, len(e.Vector), dim, ErrBindingMismatch)
		}
	}

	tx, err := c.db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if err := deleteCollection(ctx, tx, c.name); err != nil {
			return err
		}
	}
	if len(entries) > 0 {
		if err := c.bind(ctx, tx, dim); err != nil {
			return err
		}
		if err := c.insert(ctx, tx, entries); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	c.mu.Lock()
	c.binding.Dimension = dim
	c.mu.Unlock()
	return nil
}

// bind creates the collection row, or checks the stored binding against
// the one being written with.
func (c *Collection) bind(ctx context.Context, tx *sql.Tx, dim int) error {
	want := c.Binding()
	want.Dimension = dim

	var stored Binding
	err := tx.QueryRowContext(ctx,
		"SELECT embedding_provider, embedding_model, dimension FROM collections WHERE name = ?", c.name,
	).Scan(&stored.Provider, &stored.Model, &stored.Dimension)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO collections (name, embedding_provider, embedding_model, dimension, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			c.name, want.Provider, want.Model, dim, formatTime(time.Now()),
		); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", c.name, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to read collection %s: %w", c.name, err)
	}
	if !stored.Compatible(want) {
		return fmt.Errorf("collection %s built with %s, writing with %s: %w", c.name, stored, want, ErrBindingMismatch)
	}
	return nil
}

func (c *Collection) insert(ctx context.Context, tx *sql.Tx, entries []Entry) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (collection, id, vector, dimension, text, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	for _, e := range entries {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.name, e.ID, vectorToBlob(e.Vector), len(e.Vector), e.Text, string(meta), now); err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
		}
	}
	return nil
}

// Get loads one entry by id.
func (c *Collection) Get(ctx context.Context, id string) (*Entry, error) {
	row := c.db.sqlDB.QueryRowContext(ctx,
		"SELECT id, vector, text, metadata, created_at FROM entries WHERE collection = ? AND id = ?", c.name, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry not found: %s", id)
	}
	return e, err
}

// Count returns the number of entries stored
func (c *Collection) Count(ctx context.Context) (int, error) {
	var count int
	err := c.db.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries WHERE collection = ?", c.name).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// Drop deletes the collection and its entries.
func (c *Collection) Drop(ctx context.Context) error {
	return c.db.DropCollection(ctx, c.name)
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e       Entry
		blob    []byte
		meta    string
		created string
	)
	if err := row.Scan(&e.ID, &blob, &e.Text, &meta, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}
	vector, err := blobToVector(blob)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	e.Vector = vector
	if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
		return nil, fmt.Errorf("entry %s: decode metadata: %w", e.ID, err)
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	return &e, nil
}
