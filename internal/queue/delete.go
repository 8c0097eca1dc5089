package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/stratum-kg/stratum/internal/storage"
	"github.com/stratum-kg/stratum/pkg/logger"
	"github.com/stratum-kg/stratum/pkg/store"
	pgxstore "github.com/stratum-kg/stratum/pkg/store/pgx"
)

// ProcessDeleteMessage removes a document, its chunks, and its provenance
// contribution from the workspace graph, then cleans up any uploaded
// content. A message without a document id purges the whole workspace.
// Deleting an already absent document is not an error; deletes are
// retried and must be idempotent.
func ProcessDeleteMessage(ctx context.Context, deps Deps, s3Client *awss3.Client, msg string) error {
	var m DeleteMessage
	if err := json.Unmarshal([]byte(msg), &m); err != nil {
		return fmt.Errorf("malformed delete message: %w", err)
	}
	if m.Workspace == "" {
		return fmt.Errorf("delete message missing workspace")
	}

	return deps.Locks.WithLease(ctx, workspaceLockKey(m.Workspace), workspaceLockOpts, func(ctx context.Context) error {
		st := pgxstore.NewGraphDBStorage(deps.Conn, m.Workspace)

		if m.DocumentID == "" {
			if err := st.DropWorkspace(ctx); err != nil {
				return fmt.Errorf("purging workspace %s: %w", m.Workspace, err)
			}
			if s3Client != nil {
				if err := storage.DeleteWorkspace(ctx, s3Client, m.Workspace); err != nil {
					logger.Warn("Failed to delete workspace objects",
						"workspace", m.Workspace, "err", err)
				}
			}
			logger.Info("Workspace purged", "workspace", m.Workspace)
			return nil
		}

		if err := st.DeleteDocument(ctx, m.DocumentID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logger.Debug("Document already deleted",
					"workspace", m.Workspace, "document_id", m.DocumentID)
			} else {
				return fmt.Errorf("deleting document %s: %w", m.DocumentID, err)
			}
		}

		if m.ObjectKey != "" && s3Client != nil {
			if err := storage.DeleteDocument(ctx, s3Client, m.Workspace, m.DocumentID); err != nil {
				// The graph delete already went through; losing the
				// object only leaks storage.
				logger.Warn("Failed to delete uploaded content",
					"workspace", m.Workspace, "document_id", m.DocumentID, "err", err)
			}
		}

		logger.Info("Document deleted", "workspace", m.Workspace, "document_id", m.DocumentID)
		return nil
	})
}
