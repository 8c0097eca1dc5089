// Package graph drives documents through the extraction pipeline:
// validate, chunk, extract, score, deduplicate, persist.
package graph

import (
	"time"

	"github.com/stratum-kg/stratum/pkg/ai"
	"github.com/stratum-kg/stratum/pkg/cache"
	"github.com/stratum-kg/stratum/pkg/chunker"
	"github.com/stratum-kg/stratum/pkg/common"
	"github.com/stratum-kg/stratum/pkg/dedupe"
	"github.com/stratum-kg/stratum/pkg/quality"
	"github.com/stratum-kg/stratum/pkg/store"
)

const (
	// DefaultBatchSize is how many chunks are extracted concurrently.
	DefaultBatchSize = 5
	// DefaultMaxDocumentSize bounds accepted document content.
	DefaultMaxDocumentSize = 10 * 1024 * 1024
	// binaryRatioLimit is the non-printable character share above which a
	// document is rejected as binary.
	binaryRatioLimit = 0.3
)

// DefaultEntityTypes is the extraction allowlist used when Params does not
// provide one.
var DefaultEntityTypes = []string{
	"Person", "Organization", "Location", "Technology",
	"Product", "Concept", "Event", "Document",
}

// Params configures a pipeline Client. Store and AIClient are required;
// everything else has defaults. The cache is shared across all documents
// processed by one client and must be safe for concurrent use.
type Params struct {
	Store    store.GraphStorage
	AIClient ai.GraphAIClient
	Embedder *ai.Embedder
	Cache    *cache.Cache[ExtractionPayload]

	Chunker chunker.Config
	Scorer  *quality.Scorer
	Deduper *dedupe.Engine

	BatchSize       int
	MaxDocumentSize int
	EntityTypes     []string

	Now func() time.Time
}

// Client is the pipeline orchestrator. One client serves one workspace,
// because its store handle does.
type Client struct {
	store    store.GraphStorage
	aiClient ai.GraphAIClient
	embedder *ai.Embedder
	cache    *cache.Cache[ExtractionPayload]

	chunker *chunker.Engine
	scorer  *quality.Scorer
	deduper *dedupe.Engine

	batchSize       int
	maxDocumentSize int
	entityTypes     []string

	now func() time.Time
}

func NewClient(params Params) *Client {
	if params.BatchSize <= 0 {
		params.BatchSize = DefaultBatchSize
	}
	if params.MaxDocumentSize <= 0 {
		params.MaxDocumentSize = DefaultMaxDocumentSize
	}
	if len(params.EntityTypes) == 0 {
		params.EntityTypes = DefaultEntityTypes
	}
	if params.Cache == nil {
		params.Cache = cache.New[ExtractionPayload](cache.Config{})
	}
	if params.Scorer == nil {
		params.Scorer = quality.New(quality.Config{})
	}
	if params.Deduper == nil {
		params.Deduper = dedupe.New(dedupe.Config{})
	}
	if params.Now == nil {
		params.Now = time.Now
	}

	return &Client{
		store:    params.Store,
		aiClient: params.AIClient,
		embedder: params.Embedder,
		cache:    params.Cache,

		chunker: chunker.New(params.Chunker),
		scorer:  params.Scorer,
		deduper: params.Deduper,

		batchSize:       params.BatchSize,
		maxDocumentSize: params.MaxDocumentSize,
		entityTypes:     params.EntityTypes,

		now: params.Now,
	}
}

// LogEntry records one stage transition of a pipeline run.
type LogEntry struct {
	Timestamp time.Time    `json:"timestamp"`
	Stage     common.Stage `json:"stage"`
	Status    string       `json:"status"`
	Message   string       `json:"message,omitempty"`
}

// ProcessingResult is the structured outcome of one document run.
type ProcessingResult struct {
	DocumentID       string                `json:"documentId"`
	Status           common.DocumentStatus `json:"status"`
	Entities         []common.Entity       `json:"entities"`
	Relationships    []common.Relationship `json:"relationships"`
	MergedCount      int                   `json:"mergedCount"`
	ChunkCount       int                   `json:"chunkCount"`
	ProcessingTimeMs int64                 `json:"processingTimeMs"`
	Log              []LogEntry            `json:"log"`
	Errors           []string              `json:"errors"`
	Warnings         []string              `json:"warnings"`
}

func (r *ProcessingResult) logStage(now time.Time, stage common.Stage, status, message string) {
	r.Log = append(r.Log, LogEntry{Timestamp: now, Stage: stage, Status: status, Message: message})
}
