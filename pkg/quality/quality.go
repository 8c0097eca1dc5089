// Package quality computes multi-factor quality scores for extracted
// entities, relationships and document chunks. Scoring is pure: identical
// input and context always produce the same analysis.
package quality

import (
	"fmt"

	"github.com/stratum-kg/stratum/pkg/common"
)

// Category buckets an aggregate score.
type Category string

const (
	CategoryPoor      Category = "poor"
	CategoryFair      Category = "fair"
	CategoryGood      Category = "good"
	CategoryExcellent Category = "excellent"
)

// Factor is one named contribution to an aggregate score.
type Factor struct {
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	Details      string  `json:"details"`
}

// Analysis is the result of scoring one artifact. It is computed on demand
// and not persisted; callers copy Score into the artifact's properties.
type Analysis struct {
	Score           float64           `json:"score"`
	Confidence      float64           `json:"confidence"`
	Factors         map[string]Factor `json:"factors"`
	Category        Category          `json:"category"`
	Recommendations []string          `json:"recommendations"`
}

// Context carries the surroundings an artifact is scored against. All
// fields are optional; factors that need a missing field score neutrally.
type Context struct {
	// DocumentText is a representative slice of the source document used
	// for token overlap checks.
	DocumentText string
	// Entities is the full candidate set, used for uniqueness checks.
	Entities []common.Entity
}

// Config overrides factor weights per artifact kind. Absent names keep
// their default weight.
type Config struct {
	EntityWeights       map[string]float64
	RelationshipWeights map[string]float64
	ChunkWeights        map[string]float64
}

// Scorer evaluates declarative factor tables. The zero Config uses the
// default weights, which sum to 1.0 per table.
type Scorer struct {
	entityFactors       []factorSpec[common.Entity]
	relationshipFactors []factorSpec[common.Relationship]
	chunkFactors        []factorSpec[common.DocumentChunk]
}

func New(cfg Config) *Scorer {
	return &Scorer{
		entityFactors:       applyWeights(entityFactorTable(), cfg.EntityWeights),
		relationshipFactors: applyWeights(relationshipFactorTable(), cfg.RelationshipWeights),
		chunkFactors:        applyWeights(chunkFactorTable(), cfg.ChunkWeights),
	}
}

func (s *Scorer) ScoreEntity(e common.Entity, ctx Context) Analysis {
	return evaluate(s.entityFactors, e, ctx)
}

func (s *Scorer) ScoreRelationship(r common.Relationship, ctx Context) Analysis {
	return evaluate(s.relationshipFactors, r, ctx)
}

func (s *Scorer) ScoreChunk(c common.DocumentChunk, ctx Context) Analysis {
	return evaluate(s.chunkFactors, c, ctx)
}

// factorSpec pairs a named weight with the function producing the factor's
// sub-score in [0,1].
type factorSpec[T any] struct {
	name      string
	weight    float64
	eval      func(subject T, ctx Context) (float64, string)
	recommend string
}

func applyWeights[T any](specs []factorSpec[T], overrides map[string]float64) []factorSpec[T] {
	for i := range specs {
		if w, ok := overrides[specs[i].name]; ok {
			specs[i].weight = w
		}
	}
	return specs
}

func evaluate[T any](specs []factorSpec[T], subject T, ctx Context) Analysis {
	analysis := Analysis{Factors: make(map[string]Factor, len(specs))}

	scores := make([]float64, 0, len(specs))
	for _, spec := range specs {
		score, details := spec.eval(subject, ctx)
		score = clamp01(score)
		analysis.Factors[spec.name] = Factor{
			Score:        score,
			Weight:       spec.weight,
			Contribution: score * spec.weight,
			Details:      details,
		}
		analysis.Score += score * spec.weight
		scores = append(scores, score)

		if score < 0.5 {
			analysis.Recommendations = append(analysis.Recommendations,
				fmt.Sprintf("%s scored %.2f: %s", spec.name, score, spec.recommend))
		}
	}

	analysis.Score = clamp01(analysis.Score)
	analysis.Category = categorize(analysis.Score)
	analysis.Confidence = confidence(scores)
	return analysis
}

func categorize(score float64) Category {
	switch {
	case score < 0.4:
		return CategoryPoor
	case score < 0.6:
		return CategoryFair
	case score < 0.8:
		return CategoryGood
	default:
		return CategoryExcellent
	}
}

// confidence is high when factor scores agree with each other. It is
// 1 minus the variance of the sub-scores, floored at 0.1.
func confidence(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.1
	}
	var mean float64
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	var variance float64
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(scores))

	c := 1 - variance
	if c < 0.1 {
		c = 0.1
	}
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
