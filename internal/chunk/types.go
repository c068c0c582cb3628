// Package chunk splits loaded documents into overlapping character windows
// and gives each window a deterministic identifier.
package chunk

// Document is one page of text produced by the loader.
type Document struct {
	Source string // folder-relative path, slash separated
	Page   int    // 0-based page number
	Text   string
}

// Metadata travels with a chunk into the index.
type Metadata struct {
	Source     string `json:"source"`
	Page       int    `json:"page"`
	StartIndex int    `json:"start_index"`
	ChunkID    string `json:"id"`
}

// Chunk is a contiguous window of a document's text.
type Chunk struct {
	Text     string
	Metadata Metadata
}

// ID returns the assigned chunk identifier, empty before AssignIDs runs.
func (c Chunk) ID() string {
	return c.Metadata.ChunkID
}
