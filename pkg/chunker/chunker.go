package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/stratum-kg/stratum/internal/util"
	"github.com/stratum-kg/stratum/pkg/common"
)

const (
	DefaultMaxChunkSize  = 8000
	DefaultMinChunkSize  = 100
	DefaultOverlapSize   = 200
	DefaultTokenEncoding = "cl100k_base"
)

// Config holds the size parameters for the chunking engine. Sizes are in
// bytes of document content.
type Config struct {
	// MaxChunkSize is the upper bound on chunk text length. Buffers are
	// split before they exceed it.
	MaxChunkSize int
	// MinChunkSize is the lower bound below which split remainders are
	// dropped with a warning.
	MinChunkSize int
	// OverlapSize is the number of trailing bytes of a flushed chunk
	// carried into the start of its continuation.
	OverlapSize int
	// TokenEncoding names the tiktoken encoding used for token stats.
	// Empty disables token counting.
	TokenEncoding string
}

func (c Config) withDefaults() Config {
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = DefaultMaxChunkSize
	}
	if c.MinChunkSize <= 0 {
		c.MinChunkSize = DefaultMinChunkSize
	}
	if c.OverlapSize < 0 || c.OverlapSize >= c.MaxChunkSize {
		// The default overlap can itself exceed a small MaxChunkSize, so
		// clamp relative to it.
		c.OverlapSize = min(DefaultOverlapSize, c.MaxChunkSize/4)
	}
	return c
}

// Stats summarizes the chunks produced for one document.
type Stats struct {
	Count       int `json:"count"`
	MinSize     int `json:"minSize"`
	MaxSize     int `json:"maxSize"`
	AvgSize     int `json:"avgSize"`
	TotalTokens int `json:"totalTokens"`
}

// Result is the outcome of chunking a single document.
type Result struct {
	ContentType common.ContentType     `json:"contentType"`
	Chunks      []common.DocumentChunk `json:"chunks"`
	Warnings    []string               `json:"warnings"`
	Stats       Stats                  `json:"stats"`
}

// Engine splits documents into chunks using a strategy picked per content
// type. Chunking is deterministic, so running the same document through the
// same configuration yields identical chunk IDs.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Chunk classifies the document and splits its content. Undersized
// remainders are reported as warnings, never as errors.
func (e *Engine) Chunk(doc common.Document) (*Result, error) {
	res := &Result{ContentType: Classify(doc)}

	if strings.TrimSpace(doc.Content) == "" {
		res.Warnings = append(res.Warnings, "document has no content, produced no chunks")
		return res, nil
	}

	var spans []span
	switch res.ContentType {
	case common.ContentTypeMarkdown:
		spans = chunkMarkdown(doc.Content, e.cfg)
	case common.ContentTypeCode:
		spans = chunkCode(doc.Content, e.cfg)
	case common.ContentTypeJSON:
		spans = chunkJSON(doc.Content, e.cfg, res)
	case common.ContentTypeXML:
		spans = chunkXML(doc.Content, e.cfg, res)
	default:
		spans = chunkPlainText(doc.Content, e.cfg)
	}

	seq := 0
	for _, s := range spans {
		text := s.text
		if strings.TrimSpace(text) == "" {
			continue
		}
		if len(text) < e.cfg.MinChunkSize && !s.section {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("dropped chunk at offset %d, %d bytes is below the minimum of %d",
					s.start, len(text), e.cfg.MinChunkSize))
			continue
		}

		res.Chunks = append(res.Chunks, common.DocumentChunk{
			ID:            util.ChunkID(doc.ID, seq, s.start, s.end),
			DocumentID:    doc.ID,
			Text:          text,
			StartOffset:   s.start,
			EndOffset:     s.end,
			SequenceIndex: seq,
			Heading:       s.heading,
			Status:        common.ChunkStatusPending,
		})
		seq++
	}

	e.fillStats(res)
	return res, nil
}

func (e *Engine) fillStats(res *Result) {
	res.Stats.Count = len(res.Chunks)
	if len(res.Chunks) == 0 {
		return
	}

	res.Stats.MinSize = len(res.Chunks[0].Text)
	for _, c := range res.Chunks {
		size := len(c.Text)
		res.Stats.AvgSize += size
		if size < res.Stats.MinSize {
			res.Stats.MinSize = size
		}
		if size > res.Stats.MaxSize {
			res.Stats.MaxSize = size
		}
	}
	res.Stats.AvgSize /= len(res.Chunks)

	encoding := e.cfg.TokenEncoding
	if encoding == "" {
		encoding = DefaultTokenEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("token encoding %q unavailable, skipping token stats", encoding))
		return
	}
	for _, c := range res.Chunks {
		res.Stats.TotalTokens += len(enc.Encode(c.Text, nil, nil))
	}
}

// span is a strategy-produced chunk candidate. For source-addressed
// strategies text equals content[start:end]; the JSON strategy re-serializes
// and uses offsets into the serialized stream instead.
type span struct {
	text    string
	start   int
	end     int
	heading string
	// section marks a complete structural unit, such as an entire
	// markdown heading section, which is kept even when short.
	section bool
}

// unit is an indivisible piece of content that the splitter accumulates,
// a line for markdown and code, a sentence for plain text.
type unit struct {
	start, end int
	blank      bool
	structural bool
}

// splitUnits accumulates units into buffers of at most cfg.MaxChunkSize
// bytes. When a buffer would overflow it is flushed at the best break point
// at or below maxChunkSize-overlapSize, and the continuation starts with the
// trailing overlapSize bytes of the flushed buffer. Break preference: a
// structural unit boundary, any unit boundary, a word boundary, then a hard
// cut.
func splitUnits(content string, units []unit, cfg Config) []span {
	if len(units) == 0 {
		return nil
	}

	var spans []span
	bufStart := units[0].start
	for _, u := range units {
		for u.end-bufStart > cfg.MaxChunkSize {
			br := findBreak(content, units, bufStart, u.end, cfg)
			spans = append(spans, span{text: content[bufStart:br], start: bufStart, end: br})
			bufStart = overlapStart(content, bufStart, br, cfg.OverlapSize)
		}
	}
	if last := units[len(units)-1].end; last > bufStart {
		spans = append(spans, span{text: content[bufStart:last], start: bufStart, end: last})
	}
	return spans
}

func findBreak(content string, units []unit, bufStart, bufEnd int, cfg Config) int {
	limit := bufStart + cfg.MaxChunkSize - cfg.OverlapSize
	if limit <= bufStart {
		// Overlap at least as large as the chunk budget would push the
		// break before the buffer start.
		limit = bufStart + cfg.MaxChunkSize
	}
	if limit > bufEnd {
		limit = bufEnd
	}

	// Scan unit boundaries backward from the limit, preferring structural
	// ones. Boundaries that would leave an undersized chunk are skipped.
	best := -1
	for _, u := range units {
		if u.start <= bufStart || u.start > limit {
			continue
		}
		if u.start-bufStart < cfg.MinChunkSize {
			continue
		}
		if u.structural || u.blank {
			if u.start > best {
				best = u.start
			}
		}
	}
	if best > 0 {
		return best
	}
	for _, u := range units {
		if u.start <= bufStart || u.start > limit {
			continue
		}
		if u.start-bufStart < cfg.MinChunkSize {
			continue
		}
		if u.start > best {
			best = u.start
		}
	}
	if best > 0 {
		return best
	}

	// No unit boundary fits, fall back to the last word boundary.
	for i := limit - 1; i > bufStart+cfg.MinChunkSize; i-- {
		if content[i] == ' ' || content[i] == '\n' || content[i] == '\t' {
			return i + 1
		}
	}
	return limit
}

// overlapStart returns where the continuation of a buffer flushed at br
// begins. The start is pulled back by overlap bytes and then advanced to a
// word boundary so the carried suffix does not open mid-word.
func overlapStart(content string, prevStart, br, overlap int) int {
	s := br - overlap
	if s <= prevStart {
		return br
	}
	if s > 0 && !isSpace(content[s-1]) && !isSpace(content[s]) {
		for j := s; j < br; j++ {
			if isSpace(content[j]) {
				return j + 1
			}
		}
	}
	return s
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
