// Package rag implements the document retrieval engine: chunking, embedding,
// per-user indexing and grounded answer generation.
package rag

const (
	// DefaultWindowSize is the chunk window in characters.
	DefaultWindowSize = 1200

	// DefaultOverlap is how many characters adjacent windows share, so
	// context survives chunk boundaries.
	DefaultOverlap = 200
)

// ChunkText splits text into overlapping fixed-size character windows. The
// last window may be shorter; the loop stops once a window reaches the end of
// the text. Windows are measured in runes so multi-byte characters are never
// split.
func ChunkText(text string, window, overlap int) []string {
	if window <= 0 {
		window = DefaultWindowSize
	}
	// Clamp relative to the actual window so the step stays positive even
	// for small windows; the ratio matches the 1200/200 defaults.
	if overlap < 0 || overlap >= window {
		overlap = window / 6
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := window - overlap
	var chunks []string
	for start := 0; ; start += step {
		end := start + window
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
