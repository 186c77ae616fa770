// Package chunk splits extracted document text into overlapping word windows.
//
// Windows are counted in whitespace-delimited words, not model tokenizer
// tokens. The approximation is deliberate: it keeps chunking deterministic
// and offline, and embedding models tolerate mildly oversized inputs.
package chunk

import "strings"

// Default window parameters, tuned for ~512-token embedding models.
const (
	// DefaultMaxTokens is the default window size in words.
	DefaultMaxTokens = 512

	// DefaultOverlap is the default number of words shared between
	// consecutive windows.
	DefaultOverlap = 64
)

// Split cuts text into consecutive windows of at most maxTokens words.
// The stride between window starts is maxTokens-overlap; when overlap is
// greater than or equal to maxTokens the stride falls back to maxTokens so
// the scan always makes forward progress. The scan ends with the first
// window that reaches the final word, so no window is a pure suffix of
// the previous one. The position of a chunk in the returned slice is its
// chunk index, which is the stable key used by both indexes.
//
// Split is a pure function: identical inputs always produce identical
// output.
func Split(text string, maxTokens, overlap int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlap < 0 {
		overlap = 0
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := maxTokens - overlap
	if step <= 0 {
		step = maxTokens
	}

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + maxTokens
		reachedEnd := end >= len(words)
		if reachedEnd {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if reachedEnd {
			break
		}
	}
	return chunks
}
