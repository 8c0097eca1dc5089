package quality

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stratum-kg/stratum/pkg/common"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		score float64
		want  Category
	}{
		{0.0, CategoryPoor},
		{0.39, CategoryPoor},
		{0.4, CategoryFair},
		{0.59, CategoryFair},
		{0.6, CategoryGood},
		{0.75, CategoryGood},
		{0.8, CategoryExcellent},
		{1.0, CategoryExcellent},
	}
	for _, tt := range tests {
		if got := categorize(tt.score); got != tt.want {
			t.Errorf("categorize(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestScoreEntityBounds(t *testing.T) {
	scorer := New(Config{})
	entities := []common.Entity{
		{},
		{Name: "X"},
		{Name: "Kubernetes", Description: strings.Repeat("a very long description ", 50)},
		{
			Name:              "Acme Corporation",
			Description:       "A manufacturer of elaborate devices for desert use.",
			SourceDocumentIDs: common.NewStringSet("d1", "d2", "d3"),
		},
	}

	for i, e := range entities {
		a := scorer.ScoreEntity(e, Context{Entities: entities})
		if a.Score < 0 || a.Score > 1 {
			t.Errorf("entity %d score %v out of range", i, a.Score)
		}
		if a.Confidence < 0.1 || a.Confidence > 1 {
			t.Errorf("entity %d confidence %v out of range", i, a.Confidence)
		}
		if a.Category != categorize(a.Score) {
			t.Errorf("entity %d category %v inconsistent with score %v", i, a.Category, a.Score)
		}
		for name, f := range a.Factors {
			if f.Score < 0 || f.Score > 1 {
				t.Errorf("entity %d factor %s score %v out of range", i, name, f.Score)
			}
			if f.Contribution != f.Score*f.Weight {
				t.Errorf("entity %d factor %s contribution %v != score*weight", i, name, f.Contribution)
			}
		}
	}
}

func TestScoreEntityWellFormed(t *testing.T) {
	scorer := New(Config{})
	e := common.Entity{
		ID:                "acme_corporation",
		Name:              "Acme Corporation",
		Type:              "Organization",
		Description:       "A manufacturer of elaborate devices, headquartered in the desert.",
		SourceDocumentIDs: common.NewStringSet("d1", "d2", "d3"),
	}
	ctx := Context{
		DocumentText: "Acme Corporation is a manufacturer of elaborate devices in the desert.",
		Entities:     []common.Entity{e},
	}

	a := scorer.ScoreEntity(e, ctx)
	if a.Category != CategoryExcellent {
		t.Errorf("category = %v (score %v), want excellent", a.Category, a.Score)
	}
	if len(a.Recommendations) != 0 {
		t.Errorf("unexpected recommendations: %v", a.Recommendations)
	}
}

func TestScoreEntityRecommendations(t *testing.T) {
	scorer := New(Config{})
	a := scorer.ScoreEntity(common.Entity{Name: "X"}, Context{})

	if len(a.Recommendations) == 0 {
		t.Fatal("expected recommendations for a weak entity")
	}
	found := false
	for _, r := range a.Recommendations {
		if strings.Contains(r, "descriptionLength") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing description recommendation in %v", a.Recommendations)
	}
}

func TestScoreDeterminism(t *testing.T) {
	scorer := New(Config{})
	e := common.Entity{
		Name:              "Grafana",
		Description:       "An observability dashboard.",
		SourceDocumentIDs: common.NewStringSet("d1"),
	}
	ctx := Context{DocumentText: "We deployed Grafana as our observability dashboard."}

	first := scorer.ScoreEntity(e, ctx)
	second := scorer.ScoreEntity(e, ctx)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("scoring is not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestScoreEntityUniquenessPenalty(t *testing.T) {
	scorer := New(Config{})
	alone := common.Entity{ID: "python", Name: "Python", Description: "A programming language used here."}
	crowd := []common.Entity{
		alone,
		{ID: "pithon", Name: "Pithon"},
		{ID: "pythonn", Name: "Pythonn"},
	}

	unique := scorer.ScoreEntity(alone, Context{Entities: []common.Entity{alone}})
	crowded := scorer.ScoreEntity(alone, Context{Entities: crowd})
	if crowded.Factors["uniqueness"].Score >= unique.Factors["uniqueness"].Score {
		t.Errorf("near duplicates did not lower uniqueness: %v >= %v",
			crowded.Factors["uniqueness"].Score, unique.Factors["uniqueness"].Score)
	}
}

func TestScoreRelationshipTypeSpecificity(t *testing.T) {
	scorer := New(Config{})
	base := common.Relationship{
		SourceEntityID:    "grafana",
		TargetEntityID:    "prometheus",
		Description:       "Grafana reads metrics from Prometheus.",
		Weight:            0.8,
		SourceDocumentIDs: common.NewStringSet("d1"),
	}

	generic := base
	generic.Type = "related_to"
	specific := base
	specific.Type = "queries_metrics_from"

	g := scorer.ScoreRelationship(generic, Context{})
	s := scorer.ScoreRelationship(specific, Context{})
	if g.Score >= s.Score {
		t.Errorf("generic type did not score lower: %v >= %v", g.Score, s.Score)
	}
}

func TestScoreChunk(t *testing.T) {
	scorer := New(Config{})
	good := common.DocumentChunk{
		Heading: "Architecture",
		Text: "The service consumes events from the queue. Each event is validated before processing. " +
			strings.Repeat("Handlers are registered at startup and resolved per message type. ", 5),
	}
	poor := common.DocumentChunk{Text: "xx xx xx xx"}

	g := scorer.ScoreChunk(good, Context{})
	p := scorer.ScoreChunk(poor, Context{})
	if g.Score <= p.Score {
		t.Errorf("structured chunk did not outscore filler: %v <= %v", g.Score, p.Score)
	}
	if p.Category != CategoryPoor && p.Category != CategoryFair {
		t.Errorf("filler chunk category = %v, want poor or fair", p.Category)
	}
}

func TestWeightOverrides(t *testing.T) {
	scorer := New(Config{EntityWeights: map[string]float64{"nameLength": 0.5}})
	a := scorer.ScoreEntity(common.Entity{Name: "Postgres"}, Context{})
	if got := a.Factors["nameLength"].Weight; got != 0.5 {
		t.Errorf("override ignored, weight = %v", got)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"Python", "python", 1, 1},
		{"Python", "Pithon", 0.8, 0.99},
		{"Python", "Java", 0, 0.4},
		{"", "", 1, 1},
		{"abc", "", 0, 0},
	}
	for _, tt := range tests {
		got := Similarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("Similarity(%q, %q) = %v, want within [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}

func TestConfidence(t *testing.T) {
	if got := confidence(nil); got != 0.1 {
		t.Errorf("confidence(nil) = %v, want the floor", got)
	}
	if got := confidence([]float64{1, 1, 1}); got != 1 {
		t.Errorf("confidence of equal scores = %v, want 1", got)
	}
	if got := confidence([]float64{0, 1}); got != 0.75 {
		t.Errorf("confidence([0,1]) = %v, want 0.75", got)
	}
}
