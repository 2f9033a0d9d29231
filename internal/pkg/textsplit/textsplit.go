// Package textsplit cuts raw text into overlapping windows for embedding.
package textsplit

import "strings"

// Chunk is one window of a source text.
type Chunk struct {
	Text          string `json:"text"`
	SourceID      string `json:"source_id"`
	SequenceIndex int    `json:"sequence_index"`
}

// boundaryWindow is the trailing share of a window searched for a sentence end.
const boundaryWindow = 0.2

// Split walks text in windows of targetSize runes. A window that stops short of the
// end is pulled back to the last ". " in its final 20%, else to the last space.
// The next window starts overlap runes before the previous end, always moving forward.
// Invalid sizes are coerced instead of rejected: targetSize < 1 yields nil and
// overlap is clamped to [0, targetSize-1].
func Split(text string, targetSize, overlap int) []string {
	if targetSize < 1 || strings.TrimSpace(text) == "" {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= targetSize {
		overlap = targetSize - 1
	}

	runes := []rune(strings.ReplaceAll(text, "\r\n", "\n"))
	var out []string
	start := 0
	for start < len(runes) {
		end := start + targetSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = cutPoint(runes, start, end)
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, piece)
		}
		if end == len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

// SplitDocument is Split with source and sequence attached.
func SplitDocument(sourceID, text string, targetSize, overlap int) []Chunk {
	pieces := Split(text, targetSize, overlap)
	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{Text: p, SourceID: sourceID, SequenceIndex: i}
	}
	return chunks
}

func cutPoint(runes []rune, start, end int) int {
	floor := end - int(float64(end-start)*boundaryWindow)
	if floor <= start {
		floor = start + 1
	}
	for i := end - 1; i >= floor; i-- {
		if runes[i] == ' ' && runes[i-1] == '.' {
			return i
		}
	}
	for i := end - 1; i > start; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return end
}
