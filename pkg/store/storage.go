package store

import (
	"context"
	"errors"

	"github.com/stratum-kg/stratum/pkg/common"
)

// ErrNotFound is returned when a requested record does not exist in the
// bound workspace.
var ErrNotFound = errors.New("store: not found")

// GraphStorage persists and queries one workspace's knowledge graph. An
// implementation is bound to a single workspace at construction; nothing
// it reads or writes crosses into another workspace.
type GraphStorage interface {
	SaveDocument(ctx context.Context, doc common.Document) error
	GetDocument(ctx context.Context, documentID string) (common.Document, error)
	ListDocuments(ctx context.Context) ([]common.Document, error)
	UpdateDocumentStatus(ctx context.Context, documentID string, status common.DocumentStatus) error

	// SaveChunks stores chunks with their embedding vectors. embeddings
	// may be nil, or must have one vector per chunk.
	SaveChunks(ctx context.Context, chunks []common.DocumentChunk, embeddings [][]float32) error

	SaveEntities(ctx context.Context, entities []common.Entity) error
	SaveRelationships(ctx context.Context, relationships []common.Relationship) error

	GetEntities(ctx context.Context) ([]common.Entity, error)
	GetRelationships(ctx context.Context) ([]common.Relationship, error)

	// DeleteDocument removes the document, its chunks, and its
	// contribution to entity and relationship provenance. Entities and
	// relationships left without any source document are removed.
	DeleteDocument(ctx context.Context, documentID string) error

	// QuerySimilarChunks returns up to limit chunks ordered by vector
	// similarity to the given embedding.
	QuerySimilarChunks(ctx context.Context, embedding []float32, limit int) ([]common.DocumentChunk, error)

	// DropWorkspace removes every record in the bound workspace.
	DropWorkspace(ctx context.Context) error
}
