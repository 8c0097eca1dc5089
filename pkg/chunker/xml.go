package chunker

import (
	"regexp"
	"strings"
)

var reXMLOpenTag = regexp.MustCompile(`^<([A-Za-z_][A-Za-z0-9_.:-]*)`)

// chunkXML scans for balanced top-level elements and keeps each one intact,
// packing adjacent small elements together. Text between elements becomes
// its own chunk. An element larger than the size limit is split on line and
// word boundaries. Content with no balanced element falls back to plain
// text chunking with a warning.
func chunkXML(content string, cfg Config, res *Result) []span {
	raw := scanXMLElements(content)
	if len(raw) == 0 {
		res.Warnings = append(res.Warnings, "no balanced xml elements found, falling back to plain text chunking")
		return chunkPlainText(content, cfg)
	}

	var spans []span
	for _, s := range mergeAdjacent(raw, cfg.MaxChunkSize) {
		if s.end-s.start <= cfg.MaxChunkSize {
			s.text = content[s.start:s.end]
			spans = append(spans, s)
			continue
		}
		for _, part := range splitUnits(content, lineUnits(content, s.start, s.end), cfg) {
			part.heading = s.heading
			spans = append(spans, part)
		}
	}
	return spans
}

// scanXMLElements returns spans for top-level elements, with the tag name
// as the heading, interleaved with spans for bare text between them.
// Prologs, comments and doctypes are treated as inter-element text.
func scanXMLElements(content string) []span {
	var spans []span
	textStart := 0
	pos := 0

	emitText := func(end int) {
		if strings.TrimSpace(content[textStart:end]) != "" {
			spans = append(spans, span{start: textStart, end: end, section: true})
		}
	}

	for pos < len(content) {
		lt := strings.IndexByte(content[pos:], '<')
		if lt < 0 {
			break
		}
		lt += pos

		m := reXMLOpenTag.FindStringSubmatch(content[lt:])
		if m == nil {
			pos = skipMarkupDecl(content, lt)
			continue
		}
		end, ok := matchElement(content, lt, m[1])
		if !ok {
			pos = lt + 1
			continue
		}

		emitText(lt)
		spans = append(spans, span{start: lt, end: end, heading: m[1], section: true})
		pos, textStart = end, end
	}
	emitText(len(content))
	return spans
}

// skipMarkupDecl advances past a comment, processing instruction or
// doctype starting at lt. Returns the position after it.
func skipMarkupDecl(content string, lt int) int {
	rest := content[lt:]
	if strings.HasPrefix(rest, "<!--") {
		if j := strings.Index(rest, "-->"); j >= 0 {
			return lt + j + 3
		}
		return len(content)
	}
	if gt := strings.IndexByte(rest, '>'); gt >= 0 {
		return lt + gt + 1
	}
	return len(content)
}

// matchElement finds the end of the element whose opening tag starts at
// start, counting nested same-name tags. Self-closing tags end at their own
// '>'. Returns false when no balanced closing tag exists.
func matchElement(content string, start int, name string) (int, bool) {
	gt := strings.IndexByte(content[start:], '>')
	if gt < 0 {
		return 0, false
	}
	gt += start
	if content[gt-1] == '/' {
		return gt + 1, true
	}

	open := "<" + name
	close := "</" + name
	depth := 1
	pos := gt + 1
	for pos < len(content) {
		lt := strings.IndexByte(content[pos:], '<')
		if lt < 0 {
			return 0, false
		}
		lt += pos

		switch {
		case strings.HasPrefix(content[lt:], close) && tagNameEnds(content, lt+len(close)):
			tagGT := strings.IndexByte(content[lt:], '>')
			if tagGT < 0 {
				return 0, false
			}
			depth--
			if depth == 0 {
				return lt + tagGT + 1, true
			}
			pos = lt + tagGT + 1
		case strings.HasPrefix(content[lt:], open) && tagNameEnds(content, lt+len(open)):
			tagGT := strings.IndexByte(content[lt:], '>')
			if tagGT < 0 {
				return 0, false
			}
			if content[lt+tagGT-1] != '/' {
				depth++
			}
			pos = lt + tagGT + 1
		default:
			pos = lt + 1
		}
	}
	return 0, false
}

func tagNameEnds(content string, pos int) bool {
	if pos >= len(content) {
		return true
	}
	switch content[pos] {
	case ' ', '\t', '\n', '\r', '>', '/':
		return true
	}
	return false
}

// mergeAdjacent packs consecutive source spans into groups no larger than
// maxSize. Group heading comes from the first element in the group.
func mergeAdjacent(spans []span, maxSize int) []span {
	var merged []span
	for _, s := range spans {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if s.end-last.start <= maxSize {
				last.end = s.end
				if last.heading == "" {
					last.heading = s.heading
				}
				continue
			}
		}
		merged = append(merged, s)
	}
	return merged
}

// lineUnits returns line units restricted to content[lo:hi].
func lineUnits(content string, lo, hi int) []unit {
	units := splitLines(content[lo:hi])
	for i := range units {
		units[i].start += lo
		units[i].end += lo
	}
	return units
}
