package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesParameters(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 300, 100, false},
		{"no overlap", 10, 0, false},
		{"zero size", 0, 0, true},
		{"negative overlap", 10, -1, true},
		{"overlap equals size", 10, 10, true},
		{"overlap exceeds size", 10, 11, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.size, tt.overlap)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.size, c.Size())
			assert.Equal(t, tt.overlap, c.Overlap())
		})
	}
}

func TestSplitWindows(t *testing.T) {
	c, err := New(4, 1)
	require.NoError(t, err)

	chunks := c.Split([]Document{{Source: "a.pdf", Page: 0, Text: "abcdefghijk"}})
	var texts []string
	var starts []int
	for _, ch := range chunks {
		texts = append(texts, ch.Text)
		starts = append(starts, ch.Metadata.StartIndex)
	}
	assert.Equal(t, []string{"abcd", "defg", "ghij", "jk"}, texts)
	assert.Equal(t, []int{0, 3, 6, 9}, starts)
}

func TestSplitLastWindowEndsAtText(t *testing.T) {
	c, err := New(4, 1)
	require.NoError(t, err)

	chunks := c.Split([]Document{{Source: "a.pdf", Text: "abcdefghij"}})
	require.Len(t, chunks, 3)
	assert.Equal(t, "ghij", chunks[2].Text)
}

func TestSplitCoversTextWithoutGaps(t *testing.T) {
	c, err := New(300, 100)
	require.NoError(t, err)

	text := strings.Repeat("lorem ipsum dolor sit amet ", 80)
	chunks := c.Split([]Document{{Source: "long.pdf", Text: text}})
	require.NotEmpty(t, chunks)

	runes := []rune(text)
	covered := 0
	for _, ch := range chunks {
		n := len([]rune(ch.Text))
		assert.LessOrEqual(t, n, 300)
		assert.LessOrEqual(t, ch.Metadata.StartIndex, covered, "gap before offset %d", ch.Metadata.StartIndex)
		assert.Equal(t, string(runes[ch.Metadata.StartIndex:ch.Metadata.StartIndex+n]), ch.Text)
		covered = ch.Metadata.StartIndex + n
	}
	assert.Equal(t, len(runes), covered)
}

func TestSplitShortAndBlankDocuments(t *testing.T) {
	c, err := New(300, 100)
	require.NoError(t, err)

	chunks := c.Split([]Document{
		{Source: "a.pdf", Page: 0, Text: "short page"},
		{Source: "a.pdf", Page: 1, Text: "  \n\t "},
		{Source: "b.pdf", Page: 0, Text: "another"},
	})
	require.Len(t, chunks, 2)
	assert.Equal(t, "short page", chunks[0].Text)
	assert.Equal(t, "b.pdf", chunks[1].Metadata.Source)
	assert.Empty(t, c.Split(nil))
}

func TestSplitCountsRunes(t *testing.T) {
	c, err := New(3, 0)
	require.NoError(t, err)

	chunks := c.Split([]Document{{Source: "é.pdf", Text: "ñandú€"}})
	require.Len(t, chunks, 2)
	assert.Equal(t, "ñan", chunks[0].Text)
	assert.Equal(t, "dú€", chunks[1].Text)
	assert.Equal(t, 3, chunks[1].Metadata.StartIndex)
}
