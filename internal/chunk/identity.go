package chunk

import "fmt"

// FormatID renders the stable identifier of the seq-th chunk of a page.
func FormatID(source string, page, seq int) string {
	return fmt.Sprintf("%s:%d:%d", source, page, seq)
}

// AssignIDs sets ChunkID on every chunk in place and returns the slice.
//
// The sequence number restarts at 0 whenever (source, page) differs from the
// previous chunk, so ids depend only on chunk order.
func AssignIDs(chunks []Chunk) []Chunk {
	var (
		lastSource string
		lastPage   int
		seq        int
	)
	for i := range chunks {
		md := &chunks[i].Metadata
		if i == 0 || md.Source != lastSource || md.Page != lastPage {
			lastSource, lastPage = md.Source, md.Page
			seq = 0
		} else {
			seq++
		}
		md.ChunkID = FormatID(md.Source, md.Page, seq)
	}
	return chunks
}
