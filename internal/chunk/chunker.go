package chunk

import (
	"errors"
	"fmt"
	"strings"
)

// Chunker cuts documents into windows of at most Size runes; consecutive
// windows share Overlap runes.
type Chunker struct {
	size    int
	overlap int
}

// New validates the window parameters.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, errors.New("chunk: size must be greater than zero")
	}
	if overlap < 0 {
		return nil, errors.New("chunk: overlap cannot be negative")
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk: overlap %d must be smaller than size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the window size in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of runes shared by adjacent windows.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks every document in order. The returned chunks carry source,
// page and start offset but no id; see AssignIDs.
func (c *Chunker) Split(docs []Document) []Chunk {
	if len(docs) == 0 {
		return nil
	}
	chunks := make([]Chunk, 0, len(docs))
	for _, doc := range docs {
		chunks = c.appendDocument(chunks, doc)
	}
	return chunks
}

func (c *Chunker) appendDocument(dst []Chunk, doc Document) []Chunk {
	if strings.TrimSpace(doc.Text) == "" {
		return dst
	}
	runes := []rune(doc.Text)
	step := c.size - c.overlap
	for start := 0; ; start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		dst = append(dst, Chunk{
			Text: string(runes[start:end]),
			Metadata: Metadata{
				Source:     doc.Source,
				Page:       doc.Page,
				StartIndex: start,
			},
		})
		if end == len(runes) {
			return dst
		}
	}
}
