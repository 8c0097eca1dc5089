package chunker

import "regexp"

var reSentenceEnd = regexp.MustCompile(`[.!?]+\s+`)

// chunkCode splits on line boundaries, preferring blank lines, so that a
// function body is not cut mid-line unless a single line alone exceeds the
// size limit.
func chunkCode(content string, cfg Config) []span {
	return splitUnits(content, splitLines(content), cfg)
}

// chunkPlainText accumulates sentences and flushes at sentence boundaries.
// Content without terminal punctuation degrades to word boundary splits
// inside splitUnits.
func chunkPlainText(content string, cfg Config) []span {
	return splitUnits(content, splitSentences(content), cfg)
}

// splitSentences produces one unit per sentence. A sentence ends after
// terminal punctuation followed by whitespace, with the whitespace attached
// to the sentence it closes.
func splitSentences(content string) []unit {
	var units []unit
	start := 0
	for _, m := range reSentenceEnd.FindAllStringIndex(content, -1) {
		units = append(units, unit{start: start, end: m[1], structural: true})
		start = m[1]
	}
	if start < len(content) {
		units = append(units, unit{start: start, end: len(content), structural: true})
	}
	return units
}
