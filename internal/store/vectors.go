package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/DreamCats/briefly/internal/embedding"
)

// ScoredEntry is a search hit with its relevance score in [0, 1].
type ScoredEntry struct {
	Entry
	Score float32
}

// Search returns the k entries most relevant to query, by cosine similarity
// clamped to [0, 1]. Ties are broken by id ascending. An empty collection
// yields no results and no error.
func (c *Collection) Search(ctx context.Context, query []float32, k int) ([]ScoredEntry, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if k <= 0 {
		return nil, nil
	}
	if dim := c.Binding().Dimension; dim > 0 && dim != len(query) {
		return nil, fmt.Errorf("query has dimension %d, collection %s uses %d: %w", len(query), c.name, dim, ErrBindingMismatch)
	}

	// Brute force; collections here are a few thousand chunks at most.
	rows, err := c.db.sqlDB.QueryContext(ctx,
		"SELECT id, vector, text, metadata, created_at FROM entries WHERE collection = ?", c.name)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	results := make([]ScoredEntry, 0, k)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if len(e.Vector) != len(query) {
			return nil, fmt.Errorf("entry %s has dimension %d, query %d: %w", e.ID, len(e.Vector), len(query), ErrBindingMismatch)
		}
		results = append(results, ScoredEntry{Entry: *e, Score: embedding.Relevance(query, e.Vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// vectorToBlob converts a float32 slice to a little-endian binary blob
func vectorToBlob(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:i*4+4], math.Float32bits(v))
	}
	return blob
}

// blobToVector converts a binary blob to a float32 slice
func blobToVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob size %d is not a multiple of 4", len(blob))
	}

	vector := make([]float32, len(blob)/4)
	for i := 0; i < len(vector); i++ {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}

	return vector, nil
}

// sortResults orders by score descending, then id ascending.
func sortResults(results []ScoredEntry) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}
