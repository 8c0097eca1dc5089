package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stratum-kg/stratum/internal/util"
	"github.com/stratum-kg/stratum/pkg/common"
	"github.com/stratum-kg/stratum/pkg/logger"
	"github.com/stratum-kg/stratum/pkg/quality"
)

// scoringContextLimit caps how much document text is handed to the
// quality scorer for token overlap checks.
const scoringContextLimit = 4000

// Process runs the document through the full pipeline. The returned
// result always carries the stage log; err is non-nil only for fatal
// failures (validation, cancellation, persistence), in which case the
// document's terminal status is Failed and no graph artifacts were
// written for it. Extraction failures degrade to warnings instead.
//
// Cancellation is honored between stages, not mid-stage.
func (c *Client) Process(ctx context.Context, doc common.Document) (*ProcessingResult, error) {
	start := time.Now()
	res := &ProcessingResult{
		DocumentID: doc.ID,
		Status:     common.DocumentStatusProcessing,
	}
	defer func() {
		res.ProcessingTimeMs = time.Since(start).Milliseconds()
	}()

	fail := func(stage common.Stage, err error) (*ProcessingResult, error) {
		res.logStage(c.now(), stage, "error", err.Error())
		res.Errors = append(res.Errors, err.Error())
		res.Status = common.DocumentStatusFailed
		if uerr := c.store.UpdateDocumentStatus(ctx, doc.ID, common.DocumentStatusFailed); uerr != nil {
			logger.Warn("could not mark document failed", "documentId", doc.ID, "error", uerr)
		}
		return res, err
	}

	stage := func(s common.Stage) error {
		if err := ctx.Err(); err != nil {
			return common.NewPipelineError(s, "processing cancelled", err)
		}
		res.logStage(c.now(), s, "started", "")
		return nil
	}
	done := func(s common.Stage, message string) {
		res.logStage(c.now(), s, "completed", message)
	}

	// Validating
	if err := stage(common.StageValidating); err != nil {
		return fail(common.StageValidating, err)
	}
	if err := c.validateDocument(doc); err != nil {
		return fail(common.StageValidating, err)
	}
	doc.Status = common.DocumentStatusProcessing
	if err := c.store.SaveDocument(ctx, doc); err != nil {
		return fail(common.StageValidating, common.NewPipelineError(common.StageValidating, "could not record document", err))
	}
	done(common.StageValidating, "")

	// Chunking
	if err := stage(common.StageChunking); err != nil {
		return fail(common.StageChunking, err)
	}
	chunkRes, err := c.chunker.Chunk(doc)
	if err != nil {
		return fail(common.StageChunking, common.NewPipelineError(common.StageChunking, "chunking failed", err))
	}
	res.Warnings = append(res.Warnings, chunkRes.Warnings...)
	res.ChunkCount = len(chunkRes.Chunks)
	done(common.StageChunking, fmt.Sprintf("%d chunks, type %s", len(chunkRes.Chunks), chunkRes.ContentType))

	if len(chunkRes.Chunks) == 0 {
		if err := c.store.UpdateDocumentStatus(ctx, doc.ID, common.DocumentStatusCompleted); err != nil {
			return fail(common.StagePersisting, common.NewPipelineError(common.StagePersisting, "could not complete document", err))
		}
		res.Status = common.DocumentStatusCompleted
		res.logStage(c.now(), common.StageCompleted, "completed", "document produced no chunks")
		return res, nil
	}

	// Extracting
	if err := stage(common.StageExtracting); err != nil {
		return fail(common.StageExtracting, err)
	}
	snapshot, err := c.store.GetEntities(ctx)
	if err != nil {
		return fail(common.StageExtracting, common.NewPipelineError(common.StageExtracting, "could not load existing entities", err))
	}
	entities, relationships, cacheHits, err := c.extractChunks(ctx, doc, chunkRes.Chunks, snapshot, res)
	if err != nil {
		return fail(common.StageExtracting, err)
	}
	done(common.StageExtracting, fmt.Sprintf("%d entities, %d relationships, %d cache hits",
		len(entities), len(relationships), cacheHits))

	// Scoring
	if err := stage(common.StageScoring); err != nil {
		return fail(common.StageScoring, err)
	}
	avg := c.scoreArtifacts(doc, entities, relationships)
	done(common.StageScoring, fmt.Sprintf("average entity quality %.2f", avg))

	// Deduplicating
	if err := stage(common.StageDeduplicating); err != nil {
		return fail(common.StageDeduplicating, err)
	}
	dres := c.deduper.Deduplicate(entities, relationships, snapshot)
	res.Warnings = append(res.Warnings, dres.Warnings...)
	res.MergedCount = dres.MergedCount
	res.Warnings = append(res.Warnings, c.condenseDescriptions(ctx, dres.Entities, dres.Descriptions)...)
	done(common.StageDeduplicating, fmt.Sprintf("%d merged", dres.MergedCount))

	// Persisting
	if err := stage(common.StagePersisting); err != nil {
		return fail(common.StagePersisting, err)
	}
	if err := c.persist(ctx, doc, chunkRes.Chunks, dres.Entities, dres.Relationships); err != nil {
		return fail(common.StagePersisting, err)
	}
	done(common.StagePersisting, "")

	res.Entities = dres.Entities
	res.Relationships = dres.Relationships
	res.Status = common.DocumentStatusCompleted
	res.logStage(c.now(), common.StageCompleted, "completed", "")
	return res, nil
}

func (c *Client) validateDocument(doc common.Document) error {
	if len(doc.Content) == 0 {
		return common.NewPipelineError(common.StageValidating, "document content is empty", common.ErrValidation)
	}
	if len(doc.Content) > c.maxDocumentSize {
		return common.NewPipelineError(common.StageValidating,
			fmt.Sprintf("document is %d bytes, limit is %d", len(doc.Content), c.maxDocumentSize),
			common.ErrValidation)
	}
	if ratio := binaryRatio(doc.Content); ratio > binaryRatioLimit {
		return common.NewPipelineError(common.StageValidating,
			fmt.Sprintf("content looks binary, %.0f%% non-printable characters", ratio*100),
			common.ErrValidation)
	}
	return nil
}

// binaryRatio is the share of control characters and invalid UTF-8 in the
// content.
func binaryRatio(content string) float64 {
	total, bad := 0, 0
	for _, r := range content {
		total++
		if r == '�' || r == 0 || (r < 0x20 && r != '\n' && r != '\r' && r != '\t') {
			bad++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(bad) / float64(total)
}

// extractChunks runs extraction in batches. Within a batch chunks are
// processed concurrently; results are accumulated append-only under a lock
// and carry no ordering guarantees until aggregation. Oracle failures mark
// the chunk and continue; only cancellation aborts the stage.
func (c *Client) extractChunks(
	ctx context.Context,
	doc common.Document,
	chunks []common.DocumentChunk,
	snapshot []common.Entity,
	res *ProcessingResult,
) ([]common.Entity, []common.Relationship, int, error) {
	var (
		mu            sync.Mutex
		entities      []common.Entity
		relationships []common.Relationship
		cacheHits     int
	)

	for batchStart := 0; batchStart < len(chunks); batchStart += c.batchSize {
		batchEnd := min(batchStart+c.batchSize, len(chunks))

		eg, ectx := errgroup.WithContext(ctx)
		eg.SetLimit(c.batchSize)
		for i := batchStart; i < batchEnd; i++ {
			chunk := &chunks[i]
			eg.Go(func() error {
				payload, cached, err := c.extractChunk(ectx, *chunk, snapshot)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					chunk.Status = common.ChunkStatusError
					res.Warnings = append(res.Warnings,
						fmt.Sprintf("chunk %d contributed nothing: %v", chunk.SequenceIndex, err))
					return nil
				}
				if cached {
					cacheHits++
				}
				ents, rels := c.toGraphRecords(payload, doc, chunk)
				entities = append(entities, ents...)
				relationships = append(relationships, rels...)
				chunk.Status = common.ChunkStatusCompleted
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, nil, 0, common.NewPipelineError(common.StageExtracting, "extraction batch aborted", err)
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, 0, common.NewPipelineError(common.StageExtracting, "processing cancelled", err)
		}
	}

	return entities, relationships, cacheHits, nil
}

// scoreArtifacts annotates each entity with its quality score and
// category. Relationship and chunk scoring feed the same tables but their
// results are advisory, there is no property bag to persist them on.
func (c *Client) scoreArtifacts(doc common.Document, entities []common.Entity, relationships []common.Relationship) float64 {
	qctx := quality.Context{
		DocumentText: util.TruncateRunes(doc.Content, scoringContextLimit),
		Entities:     entities,
	}

	var sum float64
	for i := range entities {
		analysis := c.scorer.ScoreEntity(entities[i], qctx)
		if entities[i].Properties == nil {
			entities[i].Properties = make(map[string]any, 2)
		}
		entities[i].Properties["qualityScore"] = analysis.Score
		entities[i].Properties["qualityCategory"] = string(analysis.Category)
		sum += analysis.Score
	}

	for i := range relationships {
		analysis := c.scorer.ScoreRelationship(relationships[i], qctx)
		if analysis.Category == quality.CategoryPoor {
			logger.Debug("low quality relationship",
				"relationshipId", relationships[i].ID,
				"score", analysis.Score,
				"recommendations", analysis.Recommendations)
		}
	}

	if len(entities) == 0 {
		return 0
	}
	return sum / float64(len(entities))
}

// persist writes chunks, entities and relationships and completes the
// document. Any write error fails the document; nothing is assumed about
// writes the store already committed.
func (c *Client) persist(
	ctx context.Context,
	doc common.Document,
	chunks []common.DocumentChunk,
	entities []common.Entity,
	relationships []common.Relationship,
) error {
	var embeddings [][]float32
	if c.embedder != nil {
		texts := make([]string, len(chunks))
		for i, chunk := range chunks {
			texts[i] = chunk.Text
		}
		embeddings = c.embedder.EmbedAll(ctx, texts)
	}

	if err := c.store.SaveChunks(ctx, chunks, embeddings); err != nil {
		return common.NewPipelineError(common.StagePersisting, "saving chunks", fmt.Errorf("%w: %w", common.ErrPersistence, err))
	}
	if err := c.store.SaveEntities(ctx, entities); err != nil {
		return common.NewPipelineError(common.StagePersisting, "saving entities", fmt.Errorf("%w: %w", common.ErrPersistence, err))
	}
	if err := c.store.SaveRelationships(ctx, relationships); err != nil {
		return common.NewPipelineError(common.StagePersisting, "saving relationships", fmt.Errorf("%w: %w", common.ErrPersistence, err))
	}
	if err := c.store.UpdateDocumentStatus(ctx, doc.ID, common.DocumentStatusCompleted); err != nil {
		return common.NewPipelineError(common.StagePersisting, "completing document", fmt.Errorf("%w: %w", common.ErrPersistence, err))
	}
	return nil
}
