package pgx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/stratum-kg/stratum/internal/util"
	"github.com/stratum-kg/stratum/pkg/common"
	"github.com/stratum-kg/stratum/pkg/store"
)

func (s *GraphDBStorage) SaveChunks(ctx context.Context, chunks []common.DocumentChunk, embeddings [][]float32) error {
	if embeddings != nil && len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count %d does not match chunk count %d", len(embeddings), len(chunks))
	}

	return s.inTx(ctx, func(tx pgxv5.Tx) error {
		return store.ChunkRange(len(chunks), insertBatchSize, func(start, end int) error {
			for i := start; i < end; i++ {
				c := chunks[i]
				var embedding any
				if embeddings != nil {
					embedding = pgvector.NewVector(embeddings[i])
				}
				_, err := tx.Exec(ctx, `
					INSERT INTO chunks (workspace, id, document_id, sequence_index, start_offset, end_offset, heading, text, status, entity_ids, relationship_ids, embedding)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
					ON CONFLICT (workspace, id) DO UPDATE SET
						heading = EXCLUDED.heading,
						text = EXCLUDED.text,
						status = EXCLUDED.status,
						entity_ids = EXCLUDED.entity_ids,
						relationship_ids = EXCLUDED.relationship_ids,
						embedding = COALESCE(EXCLUDED.embedding, chunks.embedding)`,
					s.workspace, c.ID, c.DocumentID, c.SequenceIndex, c.StartOffset, c.EndOffset,
					c.Heading, util.SanitizePostgresText(c.Text), string(c.Status),
					store.DedupeStrings(c.EntityIDs), store.DedupeStrings(c.RelationshipIDs), embedding,
				)
				if err != nil {
					return fmt.Errorf("save chunk %s: %w", c.ID, err)
				}
			}
			return nil
		})
	})
}

func (s *GraphDBStorage) SaveEntities(ctx context.Context, entities []common.Entity) error {
	return s.inTx(ctx, func(tx pgxv5.Tx) error {
		return store.ChunkRange(len(entities), insertBatchSize, func(start, end int) error {
			for i := start; i < end; i++ {
				e := entities[i]
				properties, err := json.Marshal(e.Properties)
				if err != nil {
					return fmt.Errorf("marshal properties of %s: %w", e.ID, err)
				}
				_, err = tx.Exec(ctx, `
					INSERT INTO entities (workspace, id, name, type, description, properties, source_document_ids, source_chunk_ids, confidence, merged_from_ids, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
					ON CONFLICT (workspace, id) DO UPDATE SET
						name = EXCLUDED.name,
						type = EXCLUDED.type,
						description = EXCLUDED.description,
						properties = EXCLUDED.properties,
						source_document_ids = EXCLUDED.source_document_ids,
						source_chunk_ids = EXCLUDED.source_chunk_ids,
						confidence = EXCLUDED.confidence,
						merged_from_ids = EXCLUDED.merged_from_ids,
						updated_at = now()`,
					s.workspace, e.ID, e.Name, e.Type, e.Description, properties,
					sortedSlice(e.SourceDocumentIDs), sortedSlice(e.SourceChunkIDs),
					e.Confidence, e.MergedFromIDs,
				)
				if err != nil {
					return fmt.Errorf("save entity %s: %w", e.ID, err)
				}
			}
			return nil
		})
	})
}

func (s *GraphDBStorage) SaveRelationships(ctx context.Context, relationships []common.Relationship) error {
	return s.inTx(ctx, func(tx pgxv5.Tx) error {
		return store.ChunkRange(len(relationships), insertBatchSize, func(start, end int) error {
			for i := start; i < end; i++ {
				r := relationships[i]
				_, err := tx.Exec(ctx, `
					INSERT INTO relationships (workspace, id, source_entity_id, target_entity_id, type, description, weight, bidirectional, source_document_ids, source_chunk_ids, confidence, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
					ON CONFLICT (workspace, id) DO UPDATE SET
						description = EXCLUDED.description,
						weight = EXCLUDED.weight,
						bidirectional = EXCLUDED.bidirectional,
						source_document_ids = EXCLUDED.source_document_ids,
						source_chunk_ids = EXCLUDED.source_chunk_ids,
						confidence = EXCLUDED.confidence,
						updated_at = now()`,
					s.workspace, r.ID, r.SourceEntityID, r.TargetEntityID, r.Type, r.Description,
					r.Weight, r.Bidirectional, sortedSlice(r.SourceDocumentIDs),
					sortedSlice(r.SourceChunkIDs), r.Confidence,
				)
				if err != nil {
					return fmt.Errorf("save relationship %s: %w", r.ID, err)
				}
			}
			return nil
		})
	})
}

func (s *GraphDBStorage) GetEntities(ctx context.Context) ([]common.Entity, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, name, type, description, properties, source_document_ids, source_chunk_ids, confidence, merged_from_ids, created_at, updated_at
		FROM entities WHERE workspace = $1 ORDER BY id`,
		s.workspace,
	)
	if err != nil {
		return nil, fmt.Errorf("get entities: %w", err)
	}
	defer rows.Close()

	var out []common.Entity
	for rows.Next() {
		var (
			e          common.Entity
			properties []byte
			docIDs     []string
			chunkIDs   []string
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &e.Description, &properties,
			&docIDs, &chunkIDs, &e.Confidence, &e.MergedFromIDs, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("get entities: %w", err)
		}
		if len(properties) > 0 {
			if err := json.Unmarshal(properties, &e.Properties); err != nil {
				return nil, fmt.Errorf("unmarshal properties of %s: %w", e.ID, err)
			}
		}
		e.SourceDocumentIDs = common.NewStringSet(docIDs...)
		e.SourceChunkIDs = common.NewStringSet(chunkIDs...)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *GraphDBStorage) GetRelationships(ctx context.Context) ([]common.Relationship, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, source_entity_id, target_entity_id, type, description, weight, bidirectional, source_document_ids, source_chunk_ids, confidence, created_at, updated_at
		FROM relationships WHERE workspace = $1 ORDER BY id`,
		s.workspace,
	)
	if err != nil {
		return nil, fmt.Errorf("get relationships: %w", err)
	}
	defer rows.Close()

	var out []common.Relationship
	for rows.Next() {
		var (
			r        common.Relationship
			docIDs   []string
			chunkIDs []string
		)
		if err := rows.Scan(&r.ID, &r.SourceEntityID, &r.TargetEntityID, &r.Type, &r.Description,
			&r.Weight, &r.Bidirectional, &docIDs, &chunkIDs, &r.Confidence, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("get relationships: %w", err)
		}
		r.SourceDocumentIDs = common.NewStringSet(docIDs...)
		r.SourceChunkIDs = common.NewStringSet(chunkIDs...)
		out = append(out, r)
	}
	return out, rows.Err()
}

func sortedSlice(set map[string]struct{}) []string {
	out := common.SetToSlice(set)
	sort.Strings(out)
	if out == nil {
		return []string{}
	}
	return out
}
