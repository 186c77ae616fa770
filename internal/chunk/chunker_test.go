package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_Basic(t *testing.T) {
	// Given: eight words with window 4 and overlap 2
	text := "the quick brown fox the quick brown fox"

	// When: splitting
	chunks := Split(text, 4, 2)

	// Then: stride 2 produces three windows
	require.Equal(t, []string{
		"the quick brown fox",
		"brown fox the quick",
		"the quick brown fox",
	}, chunks)
}

func TestSplit_EmptyText(t *testing.T) {
	assert.Nil(t, Split("", 4, 2))
	assert.Nil(t, Split("   \n\t  ", 4, 2))
}

func TestSplit_SingleWindow(t *testing.T) {
	chunks := Split("one two three", 10, 2)
	require.Len(t, chunks, 1)
	assert.Equal(t, "one two three", chunks[0])
}

func TestSplit_OverlapAtLeastMax_ForwardProgress(t *testing.T) {
	// Given: overlap >= maxTokens would stall a naive stride
	text := "a b c d e f"

	// When: overlap equals window size
	chunks := Split(text, 2, 2)

	// Then: stride falls back to maxTokens, no overlap
	require.Equal(t, []string{"a b", "c d", "e f"}, chunks)

	// And: overlap greater than window behaves the same
	chunks = Split(text, 2, 5)
	require.Equal(t, []string{"a b", "c d", "e f"}, chunks)
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 100)
	first := Split(text, 16, 4)
	second := Split(text, 16, 4)
	assert.Equal(t, first, second)
}

func TestSplit_CoversAllWords(t *testing.T) {
	// Every word of the input must appear in at least one window, and the
	// chunk count must match the stride arithmetic.
	cases := []struct {
		n, max, overlap int
	}{
		{1, 4, 2},
		{4, 4, 2},
		{5, 4, 2},
		{100, 16, 4},
		{257, 32, 8},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("n=%d_max=%d_overlap=%d", tc.n, tc.max, tc.overlap), func(t *testing.T) {
			words := make([]string, tc.n)
			for i := range words {
				words[i] = fmt.Sprintf("w%03d", i)
			}
			chunks := Split(strings.Join(words, " "), tc.max, tc.overlap)

			// The scan stops at the first window reaching the last word:
			// one window when everything fits, otherwise the strides needed
			// for a window end to reach n, plus the initial window.
			wantCount := 1
			if tc.n > tc.max {
				step := tc.max - tc.overlap
				wantCount = (tc.n-tc.max+step-1)/step + 1
			}
			assert.Equal(t, wantCount, len(chunks))

			seen := make(map[string]bool)
			for _, c := range chunks {
				for _, w := range strings.Fields(c) {
					seen[w] = true
				}
			}
			assert.Len(t, seen, tc.n, "all words covered")
		})
	}
}

func TestSplit_DefaultsApplied(t *testing.T) {
	// Zero/negative maxTokens falls back to DefaultMaxTokens.
	words := make([]string, DefaultMaxTokens+10)
	for i := range words {
		words[i] = "x"
	}
	chunks := Split(strings.Join(words, " "), 0, -1)
	require.Len(t, chunks, 2)
	assert.Len(t, strings.Fields(chunks[0]), DefaultMaxTokens)
}
