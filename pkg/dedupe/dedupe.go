// Package dedupe merges extracted entities that refer to the same real
// world object and re-points relationships at the surviving records.
package dedupe

import (
	"fmt"
	"strings"
	"time"

	"github.com/stratum-kg/stratum/internal/util"
	"github.com/stratum-kg/stratum/pkg/common"
)

// MatchKey maps an entity to its merge key. Entities with equal keys are
// considered the same object.
type MatchKey func(e common.Entity) string

// Result is the merged view handed to persistence.
type Result struct {
	Entities      []common.Entity       `json:"entities"`
	Relationships []common.Relationship `json:"relationships"`
	MergedCount   int                   `json:"mergedCount"`
	Warnings      []string              `json:"warnings"`
	// Descriptions holds, per surviving entity ID, the distinct
	// descriptions collected from merged-away records. Only entities
	// that accumulated more than one description appear here; the
	// caller may condense them into a single description.
	Descriptions map[string][]string `json:"-"`
}

// Config tunes the engine. The zero value matches on case insensitive
// entity names and stamps merges with the wall clock.
type Config struct {
	MatchKey MatchKey
	Now      func() time.Time
}

type Engine struct {
	matchKey MatchKey
	now      func() time.Time
}

func New(cfg Config) *Engine {
	if cfg.MatchKey == nil {
		cfg.MatchKey = func(e common.Entity) string {
			return strings.ToLower(strings.TrimSpace(e.Name))
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{matchKey: cfg.MatchKey, now: cfg.Now}
}

// Deduplicate folds incoming entities into the existing snapshot. The name
// casing of the first occurrence survives. Provenance sets are unioned and
// the higher confidence wins. Relationships whose endpoints were merged
// away are re-pointed and re-keyed; relationships left with an unknown
// endpoint are dropped with a warning.
func (e *Engine) Deduplicate(entities []common.Entity, relationships []common.Relationship, existing []common.Entity) Result {
	var res Result

	byKey := make(map[string]*common.Entity)
	order := make([]string, 0, len(existing)+len(entities))
	touched := make(map[string]bool)
	descs := make(map[string][]string)

	collect := func(key, description string) {
		description = strings.TrimSpace(description)
		if description == "" {
			return
		}
		for _, prior := range descs[key] {
			if prior == description {
				return
			}
		}
		descs[key] = append(descs[key], description)
	}

	add := func(incoming common.Entity, isNew bool) {
		key := e.matchKey(incoming)
		collect(key, incoming.Description)
		survivor, ok := byKey[key]
		if !ok {
			clone := incoming
			clone.SourceDocumentIDs = common.UnionSets(nil, incoming.SourceDocumentIDs)
			clone.SourceChunkIDs = common.UnionSets(nil, incoming.SourceChunkIDs)
			byKey[key] = &clone
			order = append(order, key)
			touched[key] = isNew
			return
		}

		merge(survivor, incoming, e.now())
		if isNew {
			res.MergedCount++
			touched[key] = true
		}
	}

	for _, ent := range existing {
		add(ent, false)
	}
	for _, ent := range entities {
		add(ent, true)
	}

	// Only entities created or changed in this run flow to persistence.
	survivorID := make(map[string]string)
	for _, key := range order {
		ent := byKey[key]
		survivorID[key] = ent.ID
		if touched[key] {
			res.Entities = append(res.Entities, *ent)
			if collected := descs[key]; len(collected) > 1 {
				if res.Descriptions == nil {
					res.Descriptions = make(map[string][]string)
				}
				res.Descriptions[ent.ID] = collected
			}
		}
	}

	// Endpoint IDs derive from normalized names, so a merged-away entity's
	// ID is resolved through its match key.
	idKey := make(map[string]string)
	for key, ent := range byKey {
		idKey[ent.ID] = key
		for _, alias := range ent.MergedFromIDs {
			idKey[alias] = key
		}
	}
	resolve := func(id string) (string, bool) {
		if key, ok := idKey[id]; ok {
			return survivorID[key], true
		}
		return "", false
	}

	seen := make(map[string]int)
	for _, rel := range relationships {
		src, okSrc := resolve(rel.SourceEntityID)
		tgt, okTgt := resolve(rel.TargetEntityID)
		if !okSrc || !okTgt {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("dropped relationship %s -> %s (%s): endpoint not in merged entity set",
					rel.SourceEntityID, rel.TargetEntityID, rel.Type))
			continue
		}

		rel.SourceEntityID = src
		rel.TargetEntityID = tgt
		rel.ID = util.RelationshipID(src, tgt, rel.Type)

		if idx, dup := seen[rel.ID]; dup {
			prior := &res.Relationships[idx]
			prior.SourceDocumentIDs = common.UnionSets(prior.SourceDocumentIDs, rel.SourceDocumentIDs)
			prior.SourceChunkIDs = common.UnionSets(prior.SourceChunkIDs, rel.SourceChunkIDs)
			if rel.Confidence > prior.Confidence {
				prior.Confidence = rel.Confidence
			}
			prior.UpdatedAt = e.now()
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("duplicate relationship %s collapsed", rel.ID))
			continue
		}
		seen[rel.ID] = len(res.Relationships)
		res.Relationships = append(res.Relationships, rel)
	}

	return res
}

func merge(survivor *common.Entity, incoming common.Entity, now time.Time) {
	survivor.SourceDocumentIDs = common.UnionSets(survivor.SourceDocumentIDs, incoming.SourceDocumentIDs)
	survivor.SourceChunkIDs = common.UnionSets(survivor.SourceChunkIDs, incoming.SourceChunkIDs)
	if incoming.Confidence > survivor.Confidence {
		survivor.Confidence = incoming.Confidence
	}
	if survivor.Description == "" {
		survivor.Description = incoming.Description
	}
	if survivor.Properties == nil && incoming.Properties != nil {
		survivor.Properties = incoming.Properties
	}
	if incoming.ID != survivor.ID {
		survivor.MergedFromIDs = append(survivor.MergedFromIDs, incoming.ID)
	}
	survivor.UpdatedAt = now
}
