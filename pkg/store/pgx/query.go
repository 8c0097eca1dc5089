package pgx

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/stratum-kg/stratum/pkg/common"
)

const defaultSimilarityLimit = 10

// QuerySimilarChunks returns chunks ordered by cosine distance to the
// given embedding. Chunks without an embedding are skipped.
func (s *GraphDBStorage) QuerySimilarChunks(ctx context.Context, embedding []float32, limit int) ([]common.DocumentChunk, error) {
	if limit <= 0 {
		limit = defaultSimilarityLimit
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, document_id, sequence_index, start_offset, end_offset, heading, text, status, entity_ids, relationship_ids
		FROM chunks
		WHERE workspace = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3`,
		s.workspace, pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	var out []common.DocumentChunk
	for rows.Next() {
		var (
			c      common.DocumentChunk
			status string
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.SequenceIndex, &c.StartOffset, &c.EndOffset,
			&c.Heading, &c.Text, &status, &c.EntityIDs, &c.RelationshipIDs); err != nil {
			return nil, fmt.Errorf("query similar chunks: %w", err)
		}
		c.Status = common.ChunkStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}
