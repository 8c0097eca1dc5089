package pgx

import (
	"context"
	"errors"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/stratum-kg/stratum/internal/util"
	"github.com/stratum-kg/stratum/pkg/common"
	"github.com/stratum-kg/stratum/pkg/store"
)

func (s *GraphDBStorage) SaveDocument(ctx context.Context, doc common.Document) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO documents (workspace, id, title, filename, content_type, size_bytes, tags, content, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (workspace, id) DO UPDATE SET
			title = EXCLUDED.title,
			filename = EXCLUDED.filename,
			content_type = EXCLUDED.content_type,
			size_bytes = EXCLUDED.size_bytes,
			tags = EXCLUDED.tags,
			status = EXCLUDED.status,
			updated_at = now()`,
		s.workspace, doc.ID, doc.Metadata.Title, doc.Metadata.Filename,
		string(doc.Metadata.ContentType), doc.Metadata.SizeBytes, doc.Metadata.Tags,
		util.SanitizePostgresText(doc.Content), string(doc.Status),
	)
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *GraphDBStorage) GetDocument(ctx context.Context, documentID string) (common.Document, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT id, title, filename, content_type, size_bytes, tags, content, status
		FROM documents WHERE workspace = $1 AND id = $2`,
		s.workspace, documentID,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.Document{}, fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
	}
	if err != nil {
		return common.Document{}, fmt.Errorf("get document %s: %w", documentID, err)
	}
	return doc, nil
}

func (s *GraphDBStorage) ListDocuments(ctx context.Context) ([]common.Document, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, title, filename, content_type, size_bytes, tags, content, status
		FROM documents WHERE workspace = $1 ORDER BY created_at, id`,
		s.workspace,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []common.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *GraphDBStorage) UpdateDocumentStatus(ctx context.Context, documentID string, status common.DocumentStatus) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE documents SET status = $3, updated_at = now()
		WHERE workspace = $1 AND id = $2`,
		s.workspace, documentID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update document %s status: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
	}
	return nil
}

// DeleteDocument removes the document and its chunks, strips the document
// from entity and relationship provenance, and prunes records that lose
// their last source or an endpoint.
func (s *GraphDBStorage) DeleteDocument(ctx context.Context, documentID string) error {
	return s.inTx(ctx, func(tx pgxv5.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE workspace = $1 AND id = $2`,
			s.workspace, documentID)
		if err != nil {
			return fmt.Errorf("delete document %s: %w", documentID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
		}

		var chunkIDs []string
		rows, err := tx.Query(ctx, `
			DELETE FROM chunks WHERE workspace = $1 AND document_id = $2 RETURNING id`,
			s.workspace, documentID)
		if err != nil {
			return fmt.Errorf("delete chunks of %s: %w", documentID, err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			chunkIDs = append(chunkIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, table := range []string{"entities", "relationships"} {
			if _, err := tx.Exec(ctx, fmt.Sprintf(`
				UPDATE %s SET
					source_document_ids = array_remove(source_document_ids, $2),
					source_chunk_ids = (
						SELECT COALESCE(array_agg(cid), '{}') FROM unnest(source_chunk_ids) AS cid
						WHERE NOT cid = ANY($3::text[])
					),
					updated_at = now()
				WHERE workspace = $1 AND $2 = ANY(source_document_ids)`, table),
				s.workspace, documentID, chunkIDs); err != nil {
				return fmt.Errorf("strip provenance from %s: %w", table, err)
			}
			if _, err := tx.Exec(ctx, fmt.Sprintf(`
				DELETE FROM %s WHERE workspace = $1 AND cardinality(source_document_ids) = 0`, table),
				s.workspace); err != nil {
				return fmt.Errorf("prune orphaned %s: %w", table, err)
			}
		}

		if _, err := tx.Exec(ctx, `
			DELETE FROM relationships r WHERE r.workspace = $1 AND (
				NOT EXISTS (SELECT 1 FROM entities e WHERE e.workspace = r.workspace AND e.id = r.source_entity_id)
				OR NOT EXISTS (SELECT 1 FROM entities e WHERE e.workspace = r.workspace AND e.id = r.target_entity_id)
			)`, s.workspace); err != nil {
			return fmt.Errorf("prune dangling relationships: %w", err)
		}
		return nil
	})
}

// DropWorkspace removes every row the workspace owns across all tables.
func (s *GraphDBStorage) DropWorkspace(ctx context.Context) error {
	return s.inTx(ctx, func(tx pgxv5.Tx) error {
		for _, table := range []string{"relationships", "entities", "chunks", "documents"} {
			if _, err := tx.Exec(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE workspace = $1`, table),
				s.workspace); err != nil {
				return fmt.Errorf("drop workspace rows from %s: %w", table, err)
			}
		}
		return nil
	})
}

func scanDocument(row pgxv5.Row) (common.Document, error) {
	var (
		doc         common.Document
		contentType string
		status      string
	)
	err := row.Scan(
		&doc.ID, &doc.Metadata.Title, &doc.Metadata.Filename, &contentType,
		&doc.Metadata.SizeBytes, &doc.Metadata.Tags, &doc.Content, &status,
	)
	if err != nil {
		return common.Document{}, err
	}
	doc.Metadata.ContentType = common.ContentType(contentType)
	doc.Status = common.DocumentStatus(status)
	return doc, nil
}
