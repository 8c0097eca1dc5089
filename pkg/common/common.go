package common

import "time"

// ContentType identifies the chunking strategy selected for a document.
type ContentType string

const (
	ContentTypeMarkdown  ContentType = "markdown"
	ContentTypeCode      ContentType = "code"
	ContentTypeJSON      ContentType = "json"
	ContentTypeXML       ContentType = "xml"
	ContentTypePlainText ContentType = "plaintext"
)

// DocumentStatus tracks a document through the processing pipeline.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// ChunkStatus tracks a chunk through extraction.
type ChunkStatus string

const (
	ChunkStatusPending   ChunkStatus = "pending"
	ChunkStatusCompleted ChunkStatus = "completed"
	ChunkStatusError     ChunkStatus = "error"
)

// DocumentMetadata carries descriptive information about an ingested
// document. ContentType is a hint only; the classifier may override it.
type DocumentMetadata struct {
	Title       string      `json:"title"`
	Filename    string      `json:"filename"`
	ContentType ContentType `json:"content_type"`
	SizeBytes   int         `json:"size_bytes"`
	Tags        []string    `json:"tags"`
}

// Document is the unit of ingestion. Content is immutable once created;
// only the orchestrator advances Status.
type Document struct {
	ID       string           `json:"id"`
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
	Status   DocumentStatus   `json:"status"`
}

// DocumentChunk is a bounded, possibly overlapping slice of a document's
// text, derived deterministically by the chunking engine. Chunks are owned
// by their document and never shared across documents.
//
// EndOffset is always greater than StartOffset, and chunks are produced in
// non-decreasing SequenceIndex order.
type DocumentChunk struct {
	ID              string      `json:"id"`
	DocumentID      string      `json:"document_id"`
	Text            string      `json:"text"`
	StartOffset     int         `json:"start_offset"`
	EndOffset       int         `json:"end_offset"`
	SequenceIndex   int         `json:"sequence_index"`
	Heading         string      `json:"heading,omitempty"`
	EntityIDs       []string    `json:"entity_ids"`
	RelationshipIDs []string    `json:"relationship_ids"`
	Status          ChunkStatus `json:"status"`
}

// Entity is a node in the knowledge graph. Its ID is derived from the
// normalized name (lowercase, non-alphanumeric stripped, spaces to
// underscores) so identical names collide intentionally; that collision is
// the deduplication key.
//
// Provenance sets record every document and chunk that contributed to the
// entity. Merging unions provenance and keeps the maximum confidence.
type Entity struct {
	ID                string              `json:"id"`
	Name              string              `json:"name"`
	Type              string              `json:"type"`
	Description       string              `json:"description"`
	Properties        map[string]any      `json:"properties,omitempty"`
	SourceDocumentIDs map[string]struct{} `json:"-"`
	SourceChunkIDs    map[string]struct{} `json:"-"`
	Confidence        float64             `json:"confidence"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	MergedFromIDs     []string            `json:"merged_from_ids,omitempty"`
}

// Relationship is a directed (optionally bidirectional) edge between two
// entities. Its ID is a stable hash of (source, target, type), so the same
// relationship extracted twice collapses to one record.
type Relationship struct {
	ID                string              `json:"id"`
	SourceEntityID    string              `json:"source_entity_id"`
	TargetEntityID    string              `json:"target_entity_id"`
	Type              string              `json:"type"`
	Description       string              `json:"description"`
	Weight            float64             `json:"weight"`
	Bidirectional     bool                `json:"bidirectional"`
	SourceDocumentIDs map[string]struct{} `json:"-"`
	SourceChunkIDs    map[string]struct{} `json:"-"`
	Confidence        float64             `json:"confidence"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// NewStringSet builds a provenance set from the given values, skipping
// empty strings.
func NewStringSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}

// UnionSets merges b into a, allocating if a is nil.
func UnionSets(a, b map[string]struct{}) map[string]struct{} {
	if a == nil {
		a = make(map[string]struct{}, len(b))
	}
	for k := range b {
		a[k] = struct{}{}
	}
	return a
}

// SetToSlice returns the set's members as a slice. Order is not guaranteed;
// callers needing determinism must sort.
func SetToSlice(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
