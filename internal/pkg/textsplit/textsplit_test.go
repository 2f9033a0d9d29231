package textsplit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_EmptyInput(t *testing.T) {
	assert.Empty(t, Split("", 100, 10))
	assert.Empty(t, Split("   \n\t  ", 100, 10))
	assert.Empty(t, SplitDocument("doc", "", 100, 10))
}

func TestSplit_ShortTextIsOneChunk(t *testing.T) {
	got := Split("  hello world  ", 100, 10)
	assert.Equal(t, []string{"hello world"}, got)
}

func TestSplit_PrefersSentenceBoundary(t *testing.T) {
	text := "The first sentence is here. The second sentence follows it closely."
	got := Split(text, 32, 0)

	require.NotEmpty(t, got)
	assert.Equal(t, "The first sentence is here.", got[0])
}

func TestSplit_FallsBackToSpace(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta eta theta"
	got := Split(text, 12, 0)

	require.NotEmpty(t, got)
	for _, c := range got {
		for _, w := range strings.Fields(c) {
			assert.Contains(t, text, w)
			assert.True(t, strings.Contains(" "+text+" ", " "+w+" "), "word %q was cut", w)
		}
	}
}

func TestSplit_TerminatesWhenOverlapNearSize(t *testing.T) {
	text := strings.Repeat("abcdefghij", 50)
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{"overlap size-1", 10, 9},
		{"overlap equal size", 10, 10},
		{"overlap beyond size", 10, 50},
		{"negative overlap", 10, -3},
		{"size one", 1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Split(text, tc.size, tc.overlap)
			require.NotEmpty(t, got)
			assert.LessOrEqual(t, len(got), len(text))
		})
	}
}

func TestSplit_CoversTextInOrder(t *testing.T) {
	text := "Go is expressive, concise, clean, and efficient. " +
		"Its concurrency mechanisms make it easy to write programs. " +
		"It compiles quickly to machine code yet has the convenience of garbage collection. " +
		"The standard library is broad and the tooling is simple to use every day."

	for _, overlap := range []int{0, 5, 20} {
		got := Split(text, 40, overlap)
		require.NotEmpty(t, got)

		// every chunk appears in the source at or after the previous one
		cursor := 0
		for _, c := range got {
			idx := strings.Index(text[cursor:], c)
			if idx < 0 {
				// overlapping chunk may begin before the cursor
				idx = strings.Index(text, c)
				require.GreaterOrEqual(t, idx, 0, "chunk %q not found", c)
				require.LessOrEqual(t, idx, cursor)
				cursor = idx + len(c)
				continue
			}
			cursor += idx + len(c)
		}

		// no word of the source is lost between windows
		joined := strings.Join(got, " ")
		for _, w := range strings.Fields(text) {
			assert.Contains(t, joined, w)
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("Some repeated sentence. ", 40)
	assert.Equal(t, Split(text, 64, 8), Split(text, 64, 8))
}

func TestSplitDocument_AssignsSequence(t *testing.T) {
	chunks := SplitDocument("report.pdf", strings.Repeat("word ", 100), 50, 5)

	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, "report.pdf", c.SourceID)
		assert.Equal(t, i, c.SequenceIndex)
		assert.NotEmpty(t, c.Text)
	}
}

func TestSplit_NormalizesCRLF(t *testing.T) {
	got := Split("line one\r\nline two", 100, 0)
	assert.Equal(t, []string{"line one\nline two"}, got)
}
