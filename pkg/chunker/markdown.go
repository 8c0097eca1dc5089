package chunker

import (
	"regexp"
	"strings"
)

var (
	reHeadingLine = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)
	reListLine    = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s+\S`)
)

// chunkMarkdown splits on heading boundaries. Every heading starts a fresh
// buffer, so a section never shares a chunk with its neighbor. Sections
// larger than the size limit are split at blank lines or list item
// boundaries, and continuations keep the section's heading.
func chunkMarkdown(content string, cfg Config) []span {
	lines := splitLines(content)

	type section struct {
		heading    string
		start, end int
		units      []unit
	}

	var sections []section
	cur := section{start: 0}
	for _, ln := range lines {
		text := content[ln.start:ln.end]
		if m := reHeadingLine.FindStringSubmatch(strings.TrimRight(text, "\n")); m != nil {
			if len(cur.units) > 0 {
				cur.end = cur.units[len(cur.units)-1].end
				sections = append(sections, cur)
			}
			cur = section{heading: m[2], start: ln.start}
		}
		cur.units = append(cur.units, ln)
	}
	if len(cur.units) > 0 {
		cur.end = cur.units[len(cur.units)-1].end
		sections = append(sections, cur)
	}

	var spans []span
	for _, sec := range sections {
		if sec.end-sec.start <= cfg.MaxChunkSize {
			spans = append(spans, span{
				text:    content[sec.start:sec.end],
				start:   sec.start,
				end:     sec.end,
				heading: sec.heading,
				section: true,
			})
			continue
		}
		for _, s := range splitUnits(content, sec.units, cfg) {
			s.heading = sec.heading
			spans = append(spans, s)
		}
	}
	return spans
}

// splitLines produces one unit per line, newline included, with blank lines
// and markdown list items marked as preferred break points.
func splitLines(content string) []unit {
	var units []unit
	start := 0
	for start < len(content) {
		end := strings.IndexByte(content[start:], '\n')
		if end < 0 {
			end = len(content)
		} else {
			end = start + end + 1
		}
		text := content[start:end]
		units = append(units, unit{
			start:      start,
			end:        end,
			blank:      strings.TrimSpace(text) == "",
			structural: reListLine.MatchString(text),
		})
		start = end
	}
	return units
}
