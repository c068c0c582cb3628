package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.ID()
	}
	return out
}

func TestAssignIDsResetsPerPage(t *testing.T) {
	chunks := []Chunk{
		{Metadata: Metadata{Source: "docA", Page: 0}},
		{Metadata: Metadata{Source: "docA", Page: 0}},
		{Metadata: Metadata{Source: "docA", Page: 1}},
		{Metadata: Metadata{Source: "docA", Page: 1}},
	}
	AssignIDs(chunks)
	assert.Equal(t, []string{"docA:0:0", "docA:0:1", "docA:1:0", "docA:1:1"}, ids(chunks))
}

func TestAssignIDsResetsPerSource(t *testing.T) {
	chunks := AssignIDs([]Chunk{
		{Metadata: Metadata{Source: "a.pdf", Page: 0}},
		{Metadata: Metadata{Source: "b.pdf", Page: 0}},
		{Metadata: Metadata{Source: "b.pdf", Page: 0}},
	})
	assert.Equal(t, []string{"a.pdf:0:0", "b.pdf:0:0", "b.pdf:0:1"}, ids(chunks))
}

func TestAssignIDsDeterministic(t *testing.T) {
	c, err := New(20, 5)
	require.NoError(t, err)
	docs := []Document{
		{Source: "case/intake.pdf", Page: 0, Text: "Plaintiff Jane Roe was injured on March 3rd."},
		{Source: "case/intake.pdf", Page: 1, Text: "Treatment began at County General."},
	}

	first := ids(AssignIDs(c.Split(docs)))
	second := ids(AssignIDs(c.Split(docs)))
	assert.Equal(t, first, second)

	seen := make(map[string]bool)
	for _, id := range first {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, "case/intake.pdf:1:0", first[len(first)-2])
}

func TestAssignIDsEmpty(t *testing.T) {
	assert.Empty(t, AssignIDs(nil))
}
