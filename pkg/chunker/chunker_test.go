package chunker

import (
	"strings"
	"testing"

	"github.com/stratum-kg/stratum/pkg/common"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		want     common.ContentType
	}{
		{
			name:     "markdown extension wins over content",
			filename: "notes.md",
			content:  `{"a": 1}`,
			want:     common.ContentTypeMarkdown,
		},
		{
			name:     "code extension",
			filename: "main.go",
			content:  "package main",
			want:     common.ContentTypeCode,
		},
		{
			name:    "json content probe",
			content: `{"name": "test", "values": [1, 2, 3]}`,
			want:    common.ContentTypeJSON,
		},
		{
			name:    "xml content probe",
			content: "<root><item>one</item></root>",
			want:    common.ContentTypeXML,
		},
		{
			name:    "markdown heading heuristic",
			content: "# Title\n\nSome prose under the heading.",
			want:    common.ContentTypeMarkdown,
		},
		{
			name:    "weak markdown markers need two kinds",
			content: "- first item\n- second item\nwith a [link](https://example.com) inline",
			want:    common.ContentTypeMarkdown,
		},
		{
			name:    "code heuristics",
			content: "import os\n\ndef main():\n    return 1\n\nclass Thing:\n    pass\n",
			want:    common.ContentTypeCode,
		},
		{
			name:    "plain text fallback",
			content: "Just an ordinary paragraph of prose without any markers.",
			want:    common.ContentTypePlainText,
		},
		{
			name:    "scalar json is not json",
			content: "2025",
			want:    common.ContentTypePlainText,
		},
		{
			name:    "empty content",
			content: "   ",
			want:    common.ContentTypePlainText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := common.Document{
				Content:  tt.content,
				Metadata: common.DocumentMetadata{Filename: tt.filename},
			}
			if got := Classify(doc); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChunkMarkdownSections(t *testing.T) {
	content := "# Intro\nHello world.\n# Details\n" + strings.Repeat("x", 9000)
	engine := New(Config{MaxChunkSize: 8000, MinChunkSize: 100, OverlapSize: 200})

	res, err := engine.Chunk(common.Document{ID: "doc1", Content: content})
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if res.ContentType != common.ContentTypeMarkdown {
		t.Fatalf("ContentType = %v, want markdown", res.ContentType)
	}
	if len(res.Chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(res.Chunks))
	}

	intro := res.Chunks[0]
	if intro.Heading != "Intro" {
		t.Errorf("chunk 0 heading = %q, want Intro", intro.Heading)
	}
	if !strings.Contains(intro.Text, "Hello world.") {
		t.Errorf("chunk 0 text = %q, want the intro prose", intro.Text)
	}

	for i, c := range res.Chunks[1:] {
		if c.Heading != "Details" {
			t.Errorf("chunk %d heading = %q, want Details", i+1, c.Heading)
		}
	}
	if size := len(res.Chunks[1].Text); size < 7000 || size > 8000 {
		t.Errorf("chunk 1 size = %d, want a split near the limit", size)
	}

	// The continuation starts with the overlap suffix of its predecessor.
	prev, next := res.Chunks[1], res.Chunks[2]
	if next.StartOffset >= prev.EndOffset {
		t.Errorf("no overlap: chunk 2 starts at %d, chunk 1 ends at %d", next.StartOffset, prev.EndOffset)
	}
	if got := prev.EndOffset - next.StartOffset; got != 200 {
		t.Errorf("overlap = %d bytes, want 200", got)
	}
}

func TestChunkOffsetsMonotonic(t *testing.T) {
	content := "# One\n" + strings.Repeat("alpha beta gamma delta. ", 800)
	engine := New(Config{MaxChunkSize: 2000, MinChunkSize: 100, OverlapSize: 100})

	res, err := engine.Chunk(common.Document{ID: "doc1", Content: content})
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(res.Chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(res.Chunks))
	}

	for i, c := range res.Chunks {
		if c.EndOffset <= c.StartOffset {
			t.Errorf("chunk %d has empty range [%d, %d)", i, c.StartOffset, c.EndOffset)
		}
		if c.Text != content[c.StartOffset:c.EndOffset] {
			t.Errorf("chunk %d text does not match its offsets", i)
		}
		if c.SequenceIndex != i {
			t.Errorf("chunk %d sequence index = %d", i, c.SequenceIndex)
		}
		if i == 0 {
			continue
		}
		if c.StartOffset <= res.Chunks[i-1].StartOffset {
			t.Errorf("chunk %d start %d not after chunk %d start %d", i, c.StartOffset, i-1, res.Chunks[i-1].StartOffset)
		}
		if c.EndOffset <= res.Chunks[i-1].EndOffset {
			t.Errorf("chunk %d end %d not after chunk %d end %d", i, c.EndOffset, i-1, res.Chunks[i-1].EndOffset)
		}
	}
}

func TestChunkOverlapLargerThanMaxSize(t *testing.T) {
	// An overlap at or above MaxChunkSize is replaced by a value that
	// still leaves room below the chunk budget, even when MaxChunkSize
	// is smaller than the fixed default overlap.
	cfg := Config{MaxChunkSize: 150, MinChunkSize: 10, OverlapSize: 150}.withDefaults()
	if cfg.OverlapSize >= cfg.MaxChunkSize {
		t.Fatalf("normalized overlap %d not below max chunk size %d", cfg.OverlapSize, cfg.MaxChunkSize)
	}

	// A single unbroken word forces the hard-cut fallback in findBreak.
	content := strings.Repeat("x", 1000)
	engine := New(Config{MaxChunkSize: 150, MinChunkSize: 10, OverlapSize: 150})

	res, err := engine.Chunk(common.Document{ID: "doc1", Content: content})
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(res.Chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(res.Chunks))
	}
	for i, c := range res.Chunks {
		if c.EndOffset <= c.StartOffset {
			t.Errorf("chunk %d has empty range [%d, %d)", i, c.StartOffset, c.EndOffset)
		}
		if len(c.Text) > 150 {
			t.Errorf("chunk %d is %d bytes, above the configured max", i, len(c.Text))
		}
	}
}

func TestChunkIdempotent(t *testing.T) {
	doc := common.Document{
		ID:      "doc1",
		Content: "# Title\n" + strings.Repeat("The quick brown fox jumps over the lazy dog. ", 300),
	}
	engine := New(Config{MaxChunkSize: 3000, MinChunkSize: 100, OverlapSize: 150})

	first, err := engine.Chunk(doc)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	second, err := engine.Chunk(doc)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}

	if len(first.Chunks) != len(second.Chunks) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first.Chunks), len(second.Chunks))
	}
	for i := range first.Chunks {
		if first.Chunks[i].ID != second.Chunks[i].ID {
			t.Errorf("chunk %d IDs differ: %s vs %s", i, first.Chunks[i].ID, second.Chunks[i].ID)
		}
	}
}

func TestChunkPlainTextSentences(t *testing.T) {
	sentence := "Every sentence in this document carries the same number of bytes here. "
	content := strings.Repeat(sentence, 40)
	engine := New(Config{MaxChunkSize: 500, MinChunkSize: 50, OverlapSize: 80})

	res, err := engine.Chunk(common.Document{ID: "doc1", Content: content})
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(res.Chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(res.Chunks))
	}
	for i, c := range res.Chunks[:len(res.Chunks)-1] {
		if !strings.HasSuffix(strings.TrimRight(c.Text, " \n"), ".") {
			t.Errorf("chunk %d does not end at a sentence boundary: %q", i, c.Text[len(c.Text)-20:])
		}
		if len(c.Text) > 500 {
			t.Errorf("chunk %d size %d exceeds the limit", i, len(c.Text))
		}
	}
}

func TestChunkJSONKeepsElementOrder(t *testing.T) {
	content := `{"zulu": {"v": 1}, "alpha": {"v": 2}, "mike": {"v": 3}}`
	engine := New(Config{MaxChunkSize: 8000, MinChunkSize: 1, OverlapSize: 10})

	res, err := engine.Chunk(common.Document{
		ID:       "doc1",
		Content:  content,
		Metadata: common.DocumentMetadata{Filename: "data.json"},
	})
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(res.Chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(res.Chunks))
	}

	text := res.Chunks[0].Text
	zulu := strings.Index(text, `"zulu"`)
	alpha := strings.Index(text, `"alpha"`)
	mike := strings.Index(text, `"mike"`)
	if zulu < 0 || alpha < 0 || mike < 0 || !(zulu < alpha && alpha < mike) {
		t.Errorf("keys out of source order in %q", text)
	}
}

func TestChunkJSONGroupsArrayElements(t *testing.T) {
	var elems []string
	for range 30 {
		elems = append(elems, `{"name": "entry", "value": 42}`)
	}
	content := "[" + strings.Join(elems, ", ") + "]"
	engine := New(Config{MaxChunkSize: 200, MinChunkSize: 10, OverlapSize: 20})

	res, err := engine.Chunk(common.Document{
		ID:       "doc1",
		Content:  content,
		Metadata: common.DocumentMetadata{Filename: "data.json"},
	})
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(res.Chunks) < 2 {
		t.Fatalf("got %d chunks, want several groups", len(res.Chunks))
	}
	for i, c := range res.Chunks {
		if len(c.Text) > 200 {
			t.Errorf("chunk %d size %d exceeds the limit", i, len(c.Text))
		}
		if !strings.HasPrefix(c.Text, `{"name"`) {
			t.Errorf("chunk %d does not start on an element boundary: %q", i, c.Text)
		}
	}
}

func TestChunkJSONFallback(t *testing.T) {
	engine := New(Config{MaxChunkSize: 8000, MinChunkSize: 1, OverlapSize: 10})

	res, err := engine.Chunk(common.Document{
		ID:       "doc1",
		Content:  "this is not json at all, just prose in a misnamed file.",
		Metadata: common.DocumentMetadata{Filename: "data.json"},
	})
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(res.Chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(res.Chunks))
	}
	if !hasWarning(res.Warnings, "falling back to plain text") {
		t.Errorf("missing fallback warning, got %v", res.Warnings)
	}
}

func TestChunkXMLElements(t *testing.T) {
	content := "<?xml version=\"1.0\"?>\n<catalog><book id=\"1\"><title>First</title></book><book id=\"2\"><title>Second</title></book></catalog>"
	engine := New(Config{MaxChunkSize: 8000, MinChunkSize: 1, OverlapSize: 10})

	res, err := engine.Chunk(common.Document{ID: "doc1", Content: content})
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if res.ContentType != common.ContentTypeXML {
		t.Fatalf("ContentType = %v, want xml", res.ContentType)
	}
	if len(res.Chunks) != 1 {
		t.Fatalf("got %d chunks, want the whole catalog in 1", len(res.Chunks))
	}
	if res.Chunks[0].Heading != "catalog" {
		t.Errorf("heading = %q, want catalog", res.Chunks[0].Heading)
	}
	if !strings.Contains(res.Chunks[0].Text, "</catalog>") {
		t.Errorf("element not kept intact: %q", res.Chunks[0].Text)
	}
}

func TestChunkDropsUndersizedRemainder(t *testing.T) {
	engine := New(Config{MaxChunkSize: 8000, MinChunkSize: 100, OverlapSize: 200})

	res, err := engine.Chunk(common.Document{ID: "doc1", Content: "Too short to keep."})
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(res.Chunks) != 0 {
		t.Fatalf("got %d chunks, want 0", len(res.Chunks))
	}
	if !hasWarning(res.Warnings, "below the minimum") {
		t.Errorf("missing drop warning, got %v", res.Warnings)
	}
}

func TestChunkEmptyDocument(t *testing.T) {
	engine := New(Config{})

	res, err := engine.Chunk(common.Document{ID: "doc1", Content: "  \n "})
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(res.Chunks) != 0 {
		t.Fatalf("got %d chunks, want 0", len(res.Chunks))
	}
}

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
