// Package memory provides an in-memory GraphStorage used in tests and
// single-process development setups.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/stratum-kg/stratum/pkg/common"
	"github.com/stratum-kg/stratum/pkg/store"
)

// Backing holds the data of all workspaces behind one process-wide lock.
// Workspace handles created from the same Backing share it.
type Backing struct {
	mu         sync.RWMutex
	workspaces map[string]*workspaceData
}

type workspaceData struct {
	documents     map[string]common.Document
	chunks        map[string]common.DocumentChunk
	embeddings    map[string][]float32
	entities      map[string]common.Entity
	relationships map[string]common.Relationship
}

func NewBacking() *Backing {
	return &Backing{workspaces: make(map[string]*workspaceData)}
}

// Workspace returns a GraphStorage bound to the named workspace.
func (b *Backing) Workspace(id string) *GraphMemoryStorage {
	return &GraphMemoryStorage{backing: b, workspace: id}
}

func (b *Backing) peek(workspace string) (*workspaceData, bool) {
	ws, ok := b.workspaces[workspace]
	return ws, ok
}

func (b *Backing) data(workspace string) *workspaceData {
	ws, ok := b.workspaces[workspace]
	if !ok {
		ws = &workspaceData{
			documents:     make(map[string]common.Document),
			chunks:        make(map[string]common.DocumentChunk),
			embeddings:    make(map[string][]float32),
			entities:      make(map[string]common.Entity),
			relationships: make(map[string]common.Relationship),
		}
		b.workspaces[workspace] = ws
	}
	return ws
}

// GraphMemoryStorage implements store.GraphStorage on a shared Backing.
type GraphMemoryStorage struct {
	backing   *Backing
	workspace string
}

var _ store.GraphStorage = (*GraphMemoryStorage)(nil)

func (s *GraphMemoryStorage) SaveDocument(ctx context.Context, doc common.Document) error {
	s.backing.mu.Lock()
	defer s.backing.mu.Unlock()
	s.backing.data(s.workspace).documents[doc.ID] = doc
	return nil
}

func (s *GraphMemoryStorage) GetDocument(ctx context.Context, documentID string) (common.Document, error) {
	s.backing.mu.RLock()
	defer s.backing.mu.RUnlock()
	ws, ok := s.backing.peek(s.workspace)
	if !ok {
		return common.Document{}, fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
	}
	doc, ok := ws.documents[documentID]
	if !ok {
		return common.Document{}, fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
	}
	return doc, nil
}

func (s *GraphMemoryStorage) ListDocuments(ctx context.Context) ([]common.Document, error) {
	s.backing.mu.RLock()
	defer s.backing.mu.RUnlock()

	ws, ok := s.backing.peek(s.workspace)
	if !ok {
		return nil, nil
	}
	out := make([]common.Document, 0, len(ws.documents))
	for _, doc := range ws.documents {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *GraphMemoryStorage) UpdateDocumentStatus(ctx context.Context, documentID string, status common.DocumentStatus) error {
	s.backing.mu.Lock()
	defer s.backing.mu.Unlock()

	ws := s.backing.data(s.workspace)
	doc, ok := ws.documents[documentID]
	if !ok {
		return fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
	}
	doc.Status = status
	ws.documents[documentID] = doc
	return nil
}

func (s *GraphMemoryStorage) SaveChunks(ctx context.Context, chunks []common.DocumentChunk, embeddings [][]float32) error {
	if embeddings != nil && len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count %d does not match chunk count %d", len(embeddings), len(chunks))
	}

	s.backing.mu.Lock()
	defer s.backing.mu.Unlock()

	ws := s.backing.data(s.workspace)
	for i, c := range chunks {
		ws.chunks[c.ID] = c
		if embeddings != nil {
			ws.embeddings[c.ID] = embeddings[i]
		}
	}
	return nil
}

func (s *GraphMemoryStorage) SaveEntities(ctx context.Context, entities []common.Entity) error {
	s.backing.mu.Lock()
	defer s.backing.mu.Unlock()

	ws := s.backing.data(s.workspace)
	for _, e := range entities {
		ws.entities[e.ID] = e
	}
	return nil
}

func (s *GraphMemoryStorage) SaveRelationships(ctx context.Context, relationships []common.Relationship) error {
	s.backing.mu.Lock()
	defer s.backing.mu.Unlock()

	ws := s.backing.data(s.workspace)
	for _, r := range relationships {
		ws.relationships[r.ID] = r
	}
	return nil
}

func (s *GraphMemoryStorage) GetEntities(ctx context.Context) ([]common.Entity, error) {
	s.backing.mu.RLock()
	defer s.backing.mu.RUnlock()

	ws, ok := s.backing.peek(s.workspace)
	if !ok {
		return nil, nil
	}
	out := make([]common.Entity, 0, len(ws.entities))
	for _, e := range ws.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *GraphMemoryStorage) GetRelationships(ctx context.Context) ([]common.Relationship, error) {
	s.backing.mu.RLock()
	defer s.backing.mu.RUnlock()

	ws, ok := s.backing.peek(s.workspace)
	if !ok {
		return nil, nil
	}
	out := make([]common.Relationship, 0, len(ws.relationships))
	for _, r := range ws.relationships {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *GraphMemoryStorage) DeleteDocument(ctx context.Context, documentID string) error {
	s.backing.mu.Lock()
	defer s.backing.mu.Unlock()

	ws := s.backing.data(s.workspace)
	if _, ok := ws.documents[documentID]; !ok {
		return fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
	}
	delete(ws.documents, documentID)

	for id, c := range ws.chunks {
		if c.DocumentID == documentID {
			delete(ws.chunks, id)
			delete(ws.embeddings, id)
		}
	}

	for id, e := range ws.entities {
		if _, ok := e.SourceDocumentIDs[documentID]; !ok {
			continue
		}
		delete(e.SourceDocumentIDs, documentID)
		if len(e.SourceDocumentIDs) == 0 {
			delete(ws.entities, id)
			continue
		}
		ws.entities[id] = e
	}

	for id, r := range ws.relationships {
		if _, ok := r.SourceDocumentIDs[documentID]; ok {
			delete(r.SourceDocumentIDs, documentID)
			if len(r.SourceDocumentIDs) == 0 {
				delete(ws.relationships, id)
				continue
			}
		}
		if _, srcOK := ws.entities[r.SourceEntityID]; !srcOK {
			delete(ws.relationships, id)
			continue
		}
		if _, tgtOK := ws.entities[r.TargetEntityID]; !tgtOK {
			delete(ws.relationships, id)
			continue
		}
		ws.relationships[id] = r
	}
	return nil
}

func (s *GraphMemoryStorage) QuerySimilarChunks(ctx context.Context, embedding []float32, limit int) ([]common.DocumentChunk, error) {
	s.backing.mu.RLock()
	defer s.backing.mu.RUnlock()

	type scored struct {
		chunk common.DocumentChunk
		sim   float64
	}

	ws, ok := s.backing.peek(s.workspace)
	if !ok {
		return nil, nil
	}
	ranked := make([]scored, 0, len(ws.embeddings))
	for id, vec := range ws.embeddings {
		ranked = append(ranked, scored{chunk: ws.chunks[id], sim: cosine(embedding, vec)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].sim != ranked[j].sim {
			return ranked[i].sim > ranked[j].sim
		}
		return ranked[i].chunk.ID < ranked[j].chunk.ID
	})

	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]common.DocumentChunk, 0, limit)
	for _, r := range ranked[:limit] {
		out = append(out, r.chunk)
	}
	return out, nil
}

func (s *GraphMemoryStorage) DropWorkspace(ctx context.Context) error {
	s.backing.mu.Lock()
	defer s.backing.mu.Unlock()
	delete(s.backing.workspaces, s.workspace)
	return nil
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
