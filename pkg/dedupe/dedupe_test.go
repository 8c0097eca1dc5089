package dedupe

import (
	"strings"
	"testing"
	"time"

	"github.com/stratum-kg/stratum/internal/util"
	"github.com/stratum-kg/stratum/pkg/common"
	"github.com/stratum-kg/stratum/pkg/quality"
)

func testEngine() *Engine {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return New(Config{Now: func() time.Time { return now }})
}

func entity(name string, confidence float64, docs ...string) common.Entity {
	return common.Entity{
		ID:                util.NormalizeEntityID(name),
		Name:              name,
		Type:              "Technology",
		Confidence:        confidence,
		SourceDocumentIDs: common.NewStringSet(docs...),
	}
}

func TestDeduplicateCaseInsensitiveNames(t *testing.T) {
	engine := testEngine()

	res := engine.Deduplicate([]common.Entity{
		entity("Python", 0.6, "d1"),
		entity("python", 0.9, "d2"),
	}, nil, nil)

	if len(res.Entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(res.Entities))
	}
	got := res.Entities[0]
	if got.Name != "Python" {
		t.Errorf("name = %q, want the first occurrence's casing", got.Name)
	}
	if got.Confidence != 0.9 {
		t.Errorf("confidence = %v, want the max 0.9", got.Confidence)
	}
	wantDocs := common.NewStringSet("d1", "d2")
	if len(got.SourceDocumentIDs) != 2 {
		t.Errorf("source documents = %v, want %v", got.SourceDocumentIDs, wantDocs)
	}
	for d := range wantDocs {
		if _, ok := got.SourceDocumentIDs[d]; !ok {
			t.Errorf("source documents missing %q", d)
		}
	}
	if res.MergedCount != 1 {
		t.Errorf("merged count = %d, want 1", res.MergedCount)
	}
}

func TestDeduplicateCollectsDescriptions(t *testing.T) {
	engine := testEngine()

	a := entity("Python", 0.6, "d1")
	a.Description = "A programming language."
	b := entity("python", 0.9, "d2")
	b.Description = "An interpreted language popular for data work."
	c := entity("PYTHON", 0.5, "d3")
	c.Description = "A programming language."

	res := engine.Deduplicate([]common.Entity{a, b, c}, nil, nil)
	if len(res.Entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(res.Entities))
	}

	got := res.Descriptions[res.Entities[0].ID]
	want := []string{
		"A programming language.",
		"An interpreted language popular for data work.",
	}
	if len(got) != len(want) {
		t.Fatalf("collected descriptions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("description %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDeduplicateSingleDescriptionNotCollected(t *testing.T) {
	engine := testEngine()

	a := entity("Python", 0.6, "d1")
	a.Description = "A programming language."
	b := entity("python", 0.9, "d2")
	b.Description = "A programming language."

	res := engine.Deduplicate([]common.Entity{a, b}, nil, nil)
	if len(res.Descriptions) != 0 {
		t.Errorf("descriptions = %v, want none for agreeing merges", res.Descriptions)
	}
}

func TestDeduplicateAgainstExisting(t *testing.T) {
	engine := testEngine()
	existing := []common.Entity{entity("PostgreSQL", 0.8, "d1")}

	res := engine.Deduplicate([]common.Entity{entity("postgresql", 0.5, "d2")}, nil, existing)

	if len(res.Entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(res.Entities))
	}
	got := res.Entities[0]
	if got.Name != "PostgreSQL" {
		t.Errorf("name = %q, want the existing record's casing", got.Name)
	}
	if got.Confidence != 0.8 {
		t.Errorf("confidence = %v, want the existing max kept", got.Confidence)
	}
	if res.MergedCount != 1 {
		t.Errorf("merged count = %d, want 1", res.MergedCount)
	}
}

func TestDeduplicateUntouchedExistingNotReturned(t *testing.T) {
	engine := testEngine()
	existing := []common.Entity{entity("Redis", 0.8, "d1")}

	res := engine.Deduplicate([]common.Entity{entity("Kafka", 0.7, "d2")}, nil, existing)

	if len(res.Entities) != 1 {
		t.Fatalf("got %d entities, want only the new one", len(res.Entities))
	}
	if res.Entities[0].Name != "Kafka" {
		t.Errorf("got %q, want Kafka", res.Entities[0].Name)
	}
	if res.MergedCount != 0 {
		t.Errorf("merged count = %d, want 0", res.MergedCount)
	}
}

func TestDeduplicateRelationshipsRePointed(t *testing.T) {
	engine := testEngine()
	a := entity("Grafana", 0.9, "d1")
	b := entity("Prometheus", 0.9, "d1")
	rel := common.Relationship{
		ID:             util.RelationshipID(a.ID, b.ID, "queries"),
		SourceEntityID: a.ID,
		TargetEntityID: b.ID,
		Type:           "queries",
		Confidence:     0.8,
	}

	res := engine.Deduplicate([]common.Entity{a, b}, []common.Relationship{rel}, nil)

	if len(res.Relationships) != 1 {
		t.Fatalf("got %d relationships, want 1", len(res.Relationships))
	}
	got := res.Relationships[0]
	if got.SourceEntityID != a.ID || got.TargetEntityID != b.ID {
		t.Errorf("endpoints = %s -> %s, want %s -> %s", got.SourceEntityID, got.TargetEntityID, a.ID, b.ID)
	}
	if got.ID != util.RelationshipID(a.ID, b.ID, "queries") {
		t.Errorf("relationship ID not canonical: %s", got.ID)
	}
}

func TestDeduplicateDropsDanglingRelationship(t *testing.T) {
	engine := testEngine()
	a := entity("Grafana", 0.9, "d1")
	rel := common.Relationship{
		SourceEntityID: a.ID,
		TargetEntityID: "nonexistent_entity",
		Type:           "queries",
	}

	res := engine.Deduplicate([]common.Entity{a}, []common.Relationship{rel}, nil)

	if len(res.Relationships) != 0 {
		t.Fatalf("got %d relationships, want the dangling one dropped", len(res.Relationships))
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "endpoint not in merged entity set") {
		t.Errorf("missing dangling endpoint warning, got %v", res.Warnings)
	}
}

func TestDeduplicateCollapsesDuplicateRelationships(t *testing.T) {
	engine := testEngine()
	a := entity("Grafana", 0.9, "d1")
	b := entity("Prometheus", 0.9, "d2")
	first := common.Relationship{
		SourceEntityID:    a.ID,
		TargetEntityID:    b.ID,
		Type:              "queries",
		Confidence:        0.5,
		SourceDocumentIDs: common.NewStringSet("d1"),
	}
	second := first
	second.Confidence = 0.9
	second.SourceDocumentIDs = common.NewStringSet("d2")

	res := engine.Deduplicate([]common.Entity{a, b}, []common.Relationship{first, second}, nil)

	if len(res.Relationships) != 1 {
		t.Fatalf("got %d relationships, want duplicates collapsed to 1", len(res.Relationships))
	}
	got := res.Relationships[0]
	if got.Confidence != 0.9 {
		t.Errorf("confidence = %v, want the max 0.9", got.Confidence)
	}
	if len(got.SourceDocumentIDs) != 2 {
		t.Errorf("provenance not unioned: %v", got.SourceDocumentIDs)
	}
}

func TestDeduplicateIdempotent(t *testing.T) {
	engine := testEngine()
	in := []common.Entity{entity("Python", 0.6, "d1"), entity("python", 0.9, "d2")}

	first := engine.Deduplicate(in, nil, nil)
	second := engine.Deduplicate(first.Entities, nil, nil)

	if len(second.Entities) != 1 || second.MergedCount != 0 {
		t.Errorf("re-running dedup changed the result: %d entities, %d merged",
			len(second.Entities), second.MergedCount)
	}
}

func TestDeduplicateFuzzyMatchKey(t *testing.T) {
	// A similarity driven key can be plugged in without touching the
	// engine. This one strips a trailing "db" suffix.
	engine := New(Config{
		MatchKey: func(e common.Entity) string {
			return strings.TrimSuffix(strings.ToLower(e.Name), "db")
		},
		Now: time.Now,
	})

	res := engine.Deduplicate([]common.Entity{
		entity("Mongo", 0.5, "d1"),
		entity("MongoDB", 0.9, "d2"),
	}, nil, nil)

	if len(res.Entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(res.Entities))
	}
	if res.Entities[0].Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", res.Entities[0].Confidence)
	}
	if len(res.Entities[0].MergedFromIDs) != 1 {
		t.Errorf("merged ids = %v, want the absorbed entity recorded", res.Entities[0].MergedFromIDs)
	}
}

// Guards the choice that fuzzy similarity informs scoring but not the
// default merge key.
func TestDefaultMatchKeyIsExact(t *testing.T) {
	engine := testEngine()
	if quality.Similarity("Python", "Pithon") <= 0.8 {
		t.Skip("similarity fixture no longer near duplicate")
	}

	res := engine.Deduplicate([]common.Entity{
		entity("Python", 0.6, "d1"),
		entity("Pithon", 0.9, "d2"),
	}, nil, nil)

	if len(res.Entities) != 2 {
		t.Errorf("got %d entities, want near duplicates kept apart by default", len(res.Entities))
	}
}
