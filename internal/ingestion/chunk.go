package ingestion

import (
	"strconv"
	"unicode/utf8"
)

// DefaultChunkSize is the chunk width, in characters, used when none is
// configured.
const DefaultChunkSize = 1000

// Chunk splits text into consecutive, non-overlapping windows of size
// characters (Unicode code points). Every chunk but the last is exactly
// size characters, and concatenating the chunks reproduces text. Empty
// text yields no chunks; a size below 1 uses DefaultChunkSize.
func Chunk(text string, size int) []string {
	if size < 1 {
		size = DefaultChunkSize
	}
	if text == "" {
		return nil
	}

	chunks := make([]string, 0, utf8.RuneCountInString(text)/size+1)
	start, n := 0, 0
	for i := range text {
		if n == size {
			chunks = append(chunks, text[start:i])
			start, n = i, 0
		}
		n++
	}
	return append(chunks, text[start:])
}

// ChunkID returns the id stored for the chunk at index within its
// collection.
func ChunkID(index int) string {
	return "chunk_" + strconv.Itoa(index)
}
