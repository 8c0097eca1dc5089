package chunker

import (
	"encoding/json"
	"fmt"
	"strings"
)

// chunkJSON walks the document with a streaming decoder so element order is
// preserved, then packs whole top-level elements into chunks. Arrays are
// grouped by element, objects by key-value pair. A single element larger
// than the size limit is split at word boundaries like plain text. Content
// that fails to parse falls back to plain text chunking with a warning.
func chunkJSON(content string, cfg Config, res *Result) []span {
	elements, err := jsonElements(content)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("json parse failed (%v), falling back to plain text chunking", err))
		return chunkPlainText(content, cfg)
	}
	if len(elements) == 0 {
		return nil
	}

	// Offsets index the re-serialized element stream, not the raw source,
	// but remain strictly monotonic across chunks.
	var spans []span
	var buf []string
	cursor, bufStart, bufLen := 0, 0, 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		text := strings.Join(buf, ",\n")
		spans = append(spans, span{text: text, start: bufStart, end: bufStart + len(text), section: true})
		buf, bufLen = nil, 0
	}

	for _, elem := range elements {
		if len(elem) > cfg.MaxChunkSize {
			flush()
			for _, s := range splitUnits(elem, splitSentences(elem), cfg) {
				s.start += cursor
				s.end += cursor
				spans = append(spans, s)
			}
			cursor += len(elem) + 2
			bufStart = cursor
			continue
		}

		if bufLen > 0 && bufLen+2+len(elem) > cfg.MaxChunkSize {
			flush()
			bufStart = cursor
		}
		if bufLen == 0 {
			bufStart = cursor
		}
		buf = append(buf, elem)
		bufLen += len(elem)
		if len(buf) > 1 {
			bufLen += 2
		}
		cursor += len(elem) + 2
	}
	flush()
	return spans
}

// jsonElements serializes the top-level elements of a JSON document in
// source order. Scalar documents yield a single element.
func jsonElements(content string) ([]string, error) {
	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	var elements []string
	switch delim, ok := tok.(json.Delim); {
	case ok && delim == '[':
		for dec.More() {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, err
			}
			elements = append(elements, string(raw))
		}
	case ok && delim == '{':
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := keyTok.(string)
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, err
			}
			elements = append(elements, fmt.Sprintf("%q: %s", key, raw))
		}
	default:
		elements = append(elements, strings.TrimSpace(content))
	}
	return elements, nil
}
