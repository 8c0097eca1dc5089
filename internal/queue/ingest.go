package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratum-kg/stratum/pkg/ai"
	"github.com/stratum-kg/stratum/pkg/cache"
	"github.com/stratum-kg/stratum/pkg/common"
	"github.com/stratum-kg/stratum/pkg/graph"
	"github.com/stratum-kg/stratum/pkg/leaselock"
	"github.com/stratum-kg/stratum/pkg/loader"
	"github.com/stratum-kg/stratum/pkg/logger"
	pgxstore "github.com/stratum-kg/stratum/pkg/store/pgx"
)

// Deps bundles the long-lived resources the message processors share.
// The extraction cache is shared across all documents and workspaces;
// its keys are content hashes, so cross-workspace hits are safe.
type Deps struct {
	Conn     *pgxpool.Pool
	AIClient ai.GraphAIClient
	Embedder *ai.Embedder
	Cache    *cache.Cache[graph.ExtractionPayload]
	Loaders  *loader.Resolver
	Locks    *leaselock.Locker
}

func isValidation(err error) bool {
	return errors.Is(err, common.ErrValidation)
}

func workspaceLockKey(workspace string) string {
	return "workspace:" + workspace
}

var workspaceLockOpts = leaselock.Options{
	TTL:  5 * time.Minute,
	Wait: true,
}

// ProcessIngestMessage loads the document content and runs it through the
// pipeline. The workspace lease serializes graph writes per workspace, so
// concurrent workers cannot interleave entity merges.
//
// A returned error sends the message into the retry flow; a document that
// failed validation is terminal and does not return an error.
func ProcessIngestMessage(ctx context.Context, deps Deps, msg string) error {
	var m IngestMessage
	if err := json.Unmarshal([]byte(msg), &m); err != nil {
		return fmt.Errorf("malformed ingest message: %w", err)
	}
	if m.Workspace == "" || m.DocumentID == "" {
		return fmt.Errorf("ingest message missing workspace or document id")
	}

	content, err := deps.Loaders.Load(ctx, m.Source)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", m.DocumentID, err)
	}

	doc := common.Document{
		ID:       m.DocumentID,
		Content:  string(content),
		Metadata: m.Metadata,
		Status:   common.DocumentStatusPending,
	}

	return deps.Locks.WithLease(ctx, workspaceLockKey(m.Workspace), workspaceLockOpts, func(ctx context.Context) error {
		store := pgxstore.NewGraphDBStorage(deps.Conn, m.Workspace)
		client := graph.NewClient(graph.Params{
			Store:    store,
			AIClient: deps.AIClient,
			Embedder: deps.Embedder,
			Cache:    deps.Cache,
		})

		res, err := client.Process(ctx, doc)
		if err != nil {
			if res != nil && res.Status == common.DocumentStatusFailed && isValidation(err) {
				logger.Warn("Document rejected",
					"workspace", m.Workspace,
					"document_id", m.DocumentID,
					"errors", res.Errors,
				)
				return nil
			}
			return err
		}

		logger.Info("Document processed",
			"workspace", m.Workspace,
			"document_id", m.DocumentID,
			"chunks", res.ChunkCount,
			"entities", len(res.Entities),
			"relationships", len(res.Relationships),
			"merged", res.MergedCount,
			"warnings", len(res.Warnings),
			"duration_ms", res.ProcessingTimeMs,
		)
		return nil
	})
}
