package source

import "sort"

// LineIndex provides efficient byte offset to line/column conversion for a
// single file's full text, used by the diagnostic renderer to recover the
// source line a Position falls on. Adapted from the line-start table
// approach used elsewhere in this tree's ancestry for source-map position
// lookups; the reader itself (reader.go) never needs this — it computes
// line/column incrementally as it scans — this is for diagnostics that want
// random-access lookups after the fact.
type LineIndex struct {
	source     string
	lineStarts []int
}

// NewLineIndex builds a LineIndex over source.
func NewLineIndex(src string) *LineIndex {
	idx := &LineIndex{source: src, lineStarts: []int{0}}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' && i+1 < len(src) {
			idx.lineStarts = append(idx.lineStarts, i+1)
		}
	}
	return idx
}

// Line returns the 1-based line's text (without trailing newline).
func (idx *LineIndex) Line(line int) string {
	if line < 1 || line > len(idx.lineStarts) {
		return ""
	}
	start := idx.lineStarts[line-1]
	end := len(idx.source)
	if line < len(idx.lineStarts) {
		end = idx.lineStarts[line] - 1
	}
	if end > len(idx.source) {
		end = len(idx.source)
	}
	if start > end {
		return ""
	}
	text := idx.source[start:end]
	for len(text) > 0 && text[len(text)-1] == '\r' {
		text = text[:len(text)-1]
	}
	return text
}

// LineCount returns the number of lines indexed.
func (idx *LineIndex) LineCount() int {
	return len(idx.lineStarts)
}

// lineForOffset is kept as a separate helper (rather than inlined) so
// future lookups by byte offset — not currently needed by diag — can reuse
// the same binary search.
func (idx *LineIndex) lineForOffset(offset int) int {
	return sort.Search(len(idx.lineStarts), func(i int) bool {
		return idx.lineStarts[i] > offset
	}) - 1
}
