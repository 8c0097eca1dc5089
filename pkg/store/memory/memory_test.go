package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stratum-kg/stratum/pkg/common"
	"github.com/stratum-kg/stratum/pkg/store"
)

func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewBacking().Workspace("w1")

	doc := common.Document{ID: "d1", Content: "hello", Status: common.DocumentStatusPending}
	if err := s.SaveDocument(ctx, doc); err != nil {
		t.Fatalf("SaveDocument() error = %v", err)
	}

	if err := s.UpdateDocumentStatus(ctx, "d1", common.DocumentStatusCompleted); err != nil {
		t.Fatalf("UpdateDocumentStatus() error = %v", err)
	}
	got, err := s.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if got.Status != common.DocumentStatusCompleted {
		t.Errorf("status = %v, want completed", got.Status)
	}

	if _, err := s.GetDocument(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetDocument(missing) error = %v, want ErrNotFound", err)
	}
}

func TestWorkspaceIsolation(t *testing.T) {
	ctx := context.Background()
	backing := NewBacking()
	w1 := backing.Workspace("w1")
	w2 := backing.Workspace("w2")

	if err := w1.SaveEntities(ctx, []common.Entity{{ID: "python", Name: "Python"}}); err != nil {
		t.Fatalf("SaveEntities() error = %v", err)
	}

	got, err := w2.GetEntities(ctx)
	if err != nil {
		t.Fatalf("GetEntities() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("workspace w2 sees %d entities from w1", len(got))
	}
}

func TestDropWorkspaceLeavesOthersIntact(t *testing.T) {
	ctx := context.Background()
	backing := NewBacking()
	w1 := backing.Workspace("w1")
	w2 := backing.Workspace("w2")

	if err := w1.SaveEntities(ctx, []common.Entity{{ID: "python", Name: "Python"}}); err != nil {
		t.Fatalf("SaveEntities() error = %v", err)
	}
	if err := w2.SaveEntities(ctx, []common.Entity{{ID: "go", Name: "Go"}}); err != nil {
		t.Fatalf("SaveEntities() error = %v", err)
	}

	if err := w1.DropWorkspace(ctx); err != nil {
		t.Fatalf("DropWorkspace() error = %v", err)
	}

	got, err := w1.GetEntities(ctx)
	if err != nil {
		t.Fatalf("GetEntities() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("dropped workspace still has %d entities", len(got))
	}
	got, err = w2.GetEntities(ctx)
	if err != nil {
		t.Fatalf("GetEntities() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("untouched workspace has %d entities, want 1", len(got))
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	ctx := context.Background()
	s := NewBacking().Workspace("w1")

	if err := s.SaveDocument(ctx, common.Document{ID: "d1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveDocument(ctx, common.Document{ID: "d2"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveChunks(ctx, []common.DocumentChunk{
		{ID: "c1", DocumentID: "d1"},
		{ID: "c2", DocumentID: "d2"},
	}, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveEntities(ctx, []common.Entity{
		{ID: "only_d1", Name: "OnlyD1", SourceDocumentIDs: common.NewStringSet("d1")},
		{ID: "shared", Name: "Shared", SourceDocumentIDs: common.NewStringSet("d1", "d2")},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRelationships(ctx, []common.Relationship{
		{ID: "r1", SourceEntityID: "only_d1", TargetEntityID: "shared", SourceDocumentIDs: common.NewStringSet("d1")},
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}

	entities, _ := s.GetEntities(ctx)
	if len(entities) != 1 || entities[0].ID != "shared" {
		t.Errorf("entities after delete = %+v, want only the shared one", entities)
	}
	if _, ok := entities[0].SourceDocumentIDs["d1"]; ok {
		t.Error("shared entity still references the deleted document")
	}

	relationships, _ := s.GetRelationships(ctx)
	if len(relationships) != 0 {
		t.Errorf("relationships after delete = %+v, want none", relationships)
	}
}

func TestQuerySimilarChunks(t *testing.T) {
	ctx := context.Background()
	s := NewBacking().Workspace("w1")

	chunks := []common.DocumentChunk{
		{ID: "c1", DocumentID: "d1", Text: "north"},
		{ID: "c2", DocumentID: "d1", Text: "east"},
		{ID: "c3", DocumentID: "d1", Text: "almost north"},
	}
	embeddings := [][]float32{
		{0, 1},
		{1, 0},
		{0.1, 0.9},
	}
	if err := s.SaveChunks(ctx, chunks, embeddings); err != nil {
		t.Fatal(err)
	}

	got, err := s.QuerySimilarChunks(ctx, []float32{0, 1}, 2)
	if err != nil {
		t.Fatalf("QuerySimilarChunks() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	if got[0].ID != "c1" || got[1].ID != "c3" {
		t.Errorf("ranking = [%s, %s], want [c1, c3]", got[0].ID, got[1].ID)
	}
}

func TestSaveChunksEmbeddingMismatch(t *testing.T) {
	s := NewBacking().Workspace("w1")
	err := s.SaveChunks(context.Background(), []common.DocumentChunk{{ID: "c1"}}, [][]float32{{1}, {2}})
	if err == nil {
		t.Fatal("expected an error for mismatched embedding count")
	}
}
