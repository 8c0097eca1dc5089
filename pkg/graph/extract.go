package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/stratum-kg/stratum/internal/util"
	"github.com/stratum-kg/stratum/pkg/ai"
	"github.com/stratum-kg/stratum/pkg/cache"
	"github.com/stratum-kg/stratum/pkg/common"
)

// ExtractionPayload is the oracle's answer for one chunk. It is also the
// value type of the shared extraction cache, keyed by chunk text hash.
type ExtractionPayload struct {
	Entities []struct {
		Name        string  `json:"name" jsonschema_description:"Name of the entity as mentioned in the text"`
		Type        string  `json:"type" jsonschema_description:"One of the allowed entity types"`
		Description string  `json:"description" jsonschema_description:"Short description grounded in the text"`
		Confidence  float64 `json:"confidence" jsonschema_description:"Extraction confidence between 0 and 1"`
	} `json:"entities"`
	Relationships []struct {
		Source        string  `json:"source" jsonschema_description:"Name of the source entity"`
		Target        string  `json:"target" jsonschema_description:"Name of the target entity"`
		Type          string  `json:"type" jsonschema_description:"Specific relationship type"`
		Description   string  `json:"description" jsonschema_description:"What connects the two entities"`
		Weight        float64 `json:"weight" jsonschema_description:"Strength of the connection between 0 and 1"`
		Bidirectional bool    `json:"bidirectional" jsonschema_description:"Whether the relation reads both ways"`
		Confidence    float64 `json:"confidence" jsonschema_description:"Extraction confidence between 0 and 1"`
	} `json:"relationships"`
}

// extractChunk returns the oracle payload for one chunk, served from the
// cache when the same text was extracted before. A nil error with an empty
// payload means the oracle answer was unusable and the chunk degrades to
// zero contributions.
func (c *Client) extractChunk(ctx context.Context, chunk common.DocumentChunk, existing []common.Entity) (ExtractionPayload, bool, error) {
	key := cache.Key(chunk.Text)
	if payload, ok := c.cache.Get(key); ok {
		return payload, true, nil
	}

	prompt := fmt.Sprintf(ai.ExtractionPrompt,
		strings.Join(c.entityTypes, ", "),
		existingEntityContext(existing),
		chunk.Text,
	)

	var payload ExtractionPayload
	err := util.RetryErrWithContext(ctx, 2, func(ctx context.Context) error {
		return c.aiClient.GenerateCompletionWithFormat(
			ctx,
			"graph_extraction",
			"Entities and relationships extracted from a document chunk",
			prompt,
			&payload,
		)
	})
	if err != nil {
		return ExtractionPayload{}, false, common.NewPipelineError(common.StageExtracting, "oracle call failed", err)
	}

	c.cache.Set(key, payload)
	return payload, false, nil
}

// existingEntityContext renders the known entities for the prompt, capped
// so large graphs do not blow the context window.
func existingEntityContext(existing []common.Entity) string {
	const maxContextEntities = 50
	if len(existing) == 0 {
		return "(none yet)"
	}

	var b strings.Builder
	for i, e := range existing {
		if i >= maxContextEntities {
			fmt.Fprintf(&b, "... and %d more\n", len(existing)-i)
			break
		}
		fmt.Fprintf(&b, "- %s (%s)\n", e.Name, e.Type)
	}
	return b.String()
}

// toGraphRecords converts one chunk's payload into entity and relationship
// records carrying this chunk's provenance. Relationships referencing a
// name that is neither extracted here nor already known are kept; the
// deduplication stage drops them if the endpoint never materializes.
func (c *Client) toGraphRecords(payload ExtractionPayload, doc common.Document, chunk *common.DocumentChunk) ([]common.Entity, []common.Relationship) {
	now := c.now()

	entities := make([]common.Entity, 0, len(payload.Entities))
	for _, e := range payload.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		id := util.NormalizeEntityID(name)
		entities = append(entities, common.Entity{
			ID:                id,
			Name:              name,
			Type:              e.Type,
			Description:       strings.TrimSpace(e.Description),
			Confidence:        clampUnit(e.Confidence),
			SourceDocumentIDs: common.NewStringSet(doc.ID),
			SourceChunkIDs:    common.NewStringSet(chunk.ID),
			CreatedAt:         now,
			UpdatedAt:         now,
		})
		chunk.EntityIDs = append(chunk.EntityIDs, id)
	}

	relationships := make([]common.Relationship, 0, len(payload.Relationships))
	for _, r := range payload.Relationships {
		source := util.NormalizeEntityID(r.Source)
		target := util.NormalizeEntityID(r.Target)
		if source == "" || target == "" || source == target {
			continue
		}
		id := util.RelationshipID(source, target, r.Type)
		relationships = append(relationships, common.Relationship{
			ID:                id,
			SourceEntityID:    source,
			TargetEntityID:    target,
			Type:              r.Type,
			Description:       strings.TrimSpace(r.Description),
			Weight:            clampUnit(r.Weight),
			Bidirectional:     r.Bidirectional,
			Confidence:        clampUnit(r.Confidence),
			SourceDocumentIDs: common.NewStringSet(doc.ID),
			SourceChunkIDs:    common.NewStringSet(chunk.ID),
			CreatedAt:         now,
			UpdatedAt:         now,
		})
		chunk.RelationshipIDs = append(chunk.RelationshipIDs, id)
	}

	return entities, relationships
}

// condenseDescriptions folds the descriptions a merge accumulated for an
// entity into one through the oracle. A failed or empty completion leaves
// the merged entity's current description in place and is reported as a
// warning, never an error.
func (c *Client) condenseDescriptions(ctx context.Context, entities []common.Entity, collected map[string][]string) []string {
	if len(collected) == 0 {
		return nil
	}

	var warnings []string
	for i := range entities {
		versions, ok := collected[entities[i].ID]
		if !ok {
			continue
		}

		prompt := fmt.Sprintf(ai.DescriptionPrompt, entities[i].Name, "- "+strings.Join(versions, "\n- "))
		condensed, err := util.RetryWithContext(ctx, 2, func(ctx context.Context) (string, error) {
			return c.aiClient.GenerateCompletion(ctx, prompt)
		})
		if err != nil {
			warnings = append(warnings,
				fmt.Sprintf("kept unmerged description for %s: %v", entities[i].ID, err))
			continue
		}
		if condensed = strings.TrimSpace(condensed); condensed != "" {
			entities[i].Description = condensed
		}
	}
	return warnings
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
