package quality

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/stratum-kg/stratum/pkg/common"
)

// similarityThreshold is the edit distance similarity above which two
// entity names count as near duplicates.
const similarityThreshold = 0.8

// genericRelationshipTypes carry little information on their own.
var genericRelationshipTypes = map[string]struct{}{
	"related_to":      {},
	"related":         {},
	"associated_with": {},
	"linked_to":       {},
	"connected_to":    {},
	"has":             {},
}

func entityFactorTable() []factorSpec[common.Entity] {
	return []factorSpec[common.Entity]{
		{
			name:      "nameLength",
			weight:    0.15,
			eval:      entityNameLength,
			recommend: "use a specific, human readable entity name",
		},
		{
			name:      "descriptionLength",
			weight:    0.25,
			eval:      entityDescriptionLength,
			recommend: "add a description that explains what the entity is",
		},
		{
			name:      "uniqueness",
			weight:    0.20,
			eval:      entityUniqueness,
			recommend: "near duplicate names found, consider merging them",
		},
		{
			name:      "contextRelevance",
			weight:    0.25,
			eval:      entityContextRelevance,
			recommend: "the entity barely appears in its source document",
		},
		{
			name:      "crossDocFrequency",
			weight:    0.15,
			eval:      entityCrossDocFrequency,
			recommend: "the entity is only supported by a single document",
		},
	}
}

func relationshipFactorTable() []factorSpec[common.Relationship] {
	return []factorSpec[common.Relationship]{
		{
			name:      "descriptionLength",
			weight:    0.25,
			eval:      relationshipDescriptionLength,
			recommend: "describe what connects the two entities",
		},
		{
			name:      "typeSpecificity",
			weight:    0.20,
			eval:      relationshipTypeSpecificity,
			recommend: "replace the generic relationship type with a specific one",
		},
		{
			name:      "weightCalibration",
			weight:    0.15,
			eval:      relationshipWeightCalibration,
			recommend: "the relationship weight is outside the useful range",
		},
		{
			name:      "contextRelevance",
			weight:    0.25,
			eval:      relationshipContextRelevance,
			recommend: "the connected entities barely appear in the source document",
		},
		{
			name:      "crossDocFrequency",
			weight:    0.15,
			eval:      relationshipCrossDocFrequency,
			recommend: "the relationship is only supported by a single document",
		},
	}
}

func chunkFactorTable() []factorSpec[common.DocumentChunk] {
	return []factorSpec[common.DocumentChunk]{
		{
			name:      "textLength",
			weight:    0.30,
			eval:      chunkTextLength,
			recommend: "the chunk is too small or too large to extract from reliably",
		},
		{
			name:      "sentenceStructure",
			weight:    0.25,
			eval:      chunkSentenceStructure,
			recommend: "the chunk lacks complete sentences",
		},
		{
			name:      "informationDensity",
			weight:    0.30,
			eval:      chunkInformationDensity,
			recommend: "the chunk text is highly repetitive",
		},
		{
			name:      "headingPresence",
			weight:    0.15,
			eval:      chunkHeadingPresence,
			recommend: "no structural heading is attached to the chunk",
		},
	}
}

func entityNameLength(e common.Entity, _ Context) (float64, string) {
	n := len(strings.TrimSpace(e.Name))
	details := fmt.Sprintf("name is %d characters", n)
	switch {
	case n < 2:
		return 0.1, details
	case n < 4:
		return 0.4, details
	case n <= 50:
		return 1.0, details
	case n <= 100:
		return 0.8, details
	default:
		return 0.6, details
	}
}

func entityDescriptionLength(e common.Entity, _ Context) (float64, string) {
	return descriptionLength(e.Description)
}

func relationshipDescriptionLength(r common.Relationship, _ Context) (float64, string) {
	return descriptionLength(r.Description)
}

func descriptionLength(description string) (float64, string) {
	n := len(strings.TrimSpace(description))
	details := fmt.Sprintf("description is %d characters", n)
	switch {
	case n == 0:
		return 0.1, "description is missing"
	case n < 10:
		return 0.3, details
	case n < 20:
		return 0.5, details
	case n <= 200:
		return 1.0, details
	case n <= 500:
		return 0.8, details
	default:
		return 0.6, details
	}
}

// entityUniqueness penalizes names with near duplicates in the candidate
// set, measured by edit distance similarity.
func entityUniqueness(e common.Entity, ctx Context) (float64, string) {
	if len(ctx.Entities) == 0 {
		return 0.5, "no candidate set provided"
	}

	duplicates := 0
	for _, other := range ctx.Entities {
		if other.ID == e.ID {
			continue
		}
		if Similarity(e.Name, other.Name) > similarityThreshold {
			duplicates++
		}
	}
	details := fmt.Sprintf("%d near duplicate names", duplicates)
	switch {
	case duplicates == 0:
		return 1.0, details
	case duplicates == 1:
		return 0.7, details
	case duplicates == 2:
		return 0.5, details
	default:
		return 0.3, details
	}
}

func entityContextRelevance(e common.Entity, ctx Context) (float64, string) {
	return tokenOverlap(e.Name+" "+e.Description, ctx.DocumentText)
}

func relationshipContextRelevance(r common.Relationship, ctx Context) (float64, string) {
	return tokenOverlap(r.SourceEntityID+" "+r.TargetEntityID+" "+r.Description, ctx.DocumentText)
}

var reToken = regexp.MustCompile(`[a-z0-9]+`)

// tokenOverlap bands the share of subject tokens that occur in the context
// text. A missing context scores neutrally.
func tokenOverlap(subject, context string) (float64, string) {
	if strings.TrimSpace(context) == "" {
		return 0.5, "no context provided"
	}

	subjectTokens := reToken.FindAllString(strings.ToLower(subject), -1)
	if len(subjectTokens) == 0 {
		return 0.2, "no tokens to compare"
	}

	contextTokens := make(map[string]struct{})
	for _, t := range reToken.FindAllString(strings.ToLower(context), -1) {
		contextTokens[t] = struct{}{}
	}

	matched := 0
	for _, t := range subjectTokens {
		if _, ok := contextTokens[t]; ok {
			matched++
		}
	}
	ratio := float64(matched) / float64(len(subjectTokens))
	details := fmt.Sprintf("%d of %d tokens found in context", matched, len(subjectTokens))
	switch {
	case ratio >= 0.5:
		return 1.0, details
	case ratio >= 0.3:
		return 0.8, details
	case ratio >= 0.15:
		return 0.6, details
	case ratio > 0:
		return 0.4, details
	default:
		return 0.2, details
	}
}

func entityCrossDocFrequency(e common.Entity, _ Context) (float64, string) {
	return crossDocFrequency(len(e.SourceDocumentIDs))
}

func relationshipCrossDocFrequency(r common.Relationship, _ Context) (float64, string) {
	return crossDocFrequency(len(r.SourceDocumentIDs))
}

func crossDocFrequency(docs int) (float64, string) {
	details := fmt.Sprintf("mentioned in %d documents", docs)
	switch {
	case docs == 0:
		return 0.2, details
	case docs == 1:
		return 0.5, details
	case docs == 2:
		return 0.7, details
	case docs <= 5:
		return 0.9, details
	default:
		return 1.0, details
	}
}

func relationshipTypeSpecificity(r common.Relationship, _ Context) (float64, string) {
	t := strings.ToLower(strings.TrimSpace(r.Type))
	if t == "" {
		return 0.1, "relationship type is missing"
	}
	if _, generic := genericRelationshipTypes[t]; generic {
		return 0.4, fmt.Sprintf("type %q is generic", r.Type)
	}
	return 1.0, fmt.Sprintf("type %q is specific", r.Type)
}

func relationshipWeightCalibration(r common.Relationship, _ Context) (float64, string) {
	details := fmt.Sprintf("weight is %.2f", r.Weight)
	switch {
	case r.Weight <= 0 || r.Weight > 1:
		return 0.2, details
	case r.Weight < 0.1:
		return 0.5, details
	default:
		return 1.0, details
	}
}

func chunkTextLength(c common.DocumentChunk, _ Context) (float64, string) {
	n := len(c.Text)
	details := fmt.Sprintf("chunk is %d bytes", n)
	switch {
	case n < 50:
		return 0.2, details
	case n < 200:
		return 0.6, details
	case n <= 6000:
		return 1.0, details
	case n <= 10000:
		return 0.7, details
	default:
		return 0.4, details
	}
}

var reSentence = regexp.MustCompile(`[.!?](\s|$)`)

func chunkSentenceStructure(c common.DocumentChunk, _ Context) (float64, string) {
	sentences := len(reSentence.FindAllString(c.Text, -1))
	details := fmt.Sprintf("%d sentences", sentences)
	switch {
	case sentences == 0:
		return 0.3, details
	case sentences < 2:
		return 0.6, details
	default:
		return 1.0, details
	}
}

// chunkInformationDensity scores the ratio of distinct tokens to total
// tokens. Repeated filler drags it down.
func chunkInformationDensity(c common.DocumentChunk, _ Context) (float64, string) {
	tokens := reToken.FindAllString(strings.ToLower(c.Text), -1)
	if len(tokens) == 0 {
		return 0.1, "no tokens"
	}
	distinct := make(map[string]struct{})
	for _, t := range tokens {
		distinct[t] = struct{}{}
	}
	ratio := float64(len(distinct)) / float64(len(tokens))
	details := fmt.Sprintf("%d distinct of %d tokens", len(distinct), len(tokens))
	switch {
	case ratio >= 0.5:
		return 1.0, details
	case ratio >= 0.3:
		return 0.8, details
	case ratio >= 0.15:
		return 0.5, details
	default:
		return 0.2, details
	}
}

func chunkHeadingPresence(c common.DocumentChunk, _ Context) (float64, string) {
	if strings.TrimSpace(c.Heading) == "" {
		return 0.4, "no heading"
	}
	return 1.0, fmt.Sprintf("heading %q", c.Heading)
}
