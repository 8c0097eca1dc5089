package routes

import (
	"maps"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/stratum-kg/stratum/internal/server/middleware"
	"github.com/stratum-kg/stratum/pkg/common"
	"github.com/stratum-kg/stratum/pkg/logger"
	pgxstore "github.com/stratum-kg/stratum/pkg/store/pgx"
)

type entityJSON struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Type              string         `json:"type"`
	Description       string         `json:"description"`
	Properties        map[string]any `json:"properties,omitempty"`
	Confidence        float64        `json:"confidence"`
	SourceDocumentIDs []string       `json:"source_document_ids"`
	SourceChunkIDs    []string       `json:"source_chunk_ids"`
	MergedFromIDs     []string       `json:"merged_from_ids,omitempty"`
}

type relationshipJSON struct {
	ID                string   `json:"id"`
	SourceEntityID    string   `json:"source_entity_id"`
	TargetEntityID    string   `json:"target_entity_id"`
	Type              string   `json:"type"`
	Description       string   `json:"description"`
	Weight            float64  `json:"weight"`
	Bidirectional     bool     `json:"bidirectional"`
	Confidence        float64  `json:"confidence"`
	SourceDocumentIDs []string `json:"source_document_ids"`
	SourceChunkIDs    []string `json:"source_chunk_ids"`
}

func sortedSet(set map[string]struct{}) []string {
	if len(set) == 0 {
		return []string{}
	}
	return slices.Sorted(maps.Keys(set))
}

func toEntityJSON(e common.Entity) entityJSON {
	return entityJSON{
		ID:                e.ID,
		Name:              e.Name,
		Type:              e.Type,
		Description:       e.Description,
		Properties:        e.Properties,
		Confidence:        e.Confidence,
		SourceDocumentIDs: sortedSet(e.SourceDocumentIDs),
		SourceChunkIDs:    sortedSet(e.SourceChunkIDs),
		MergedFromIDs:     e.MergedFromIDs,
	}
}

func toRelationshipJSON(r common.Relationship) relationshipJSON {
	return relationshipJSON{
		ID:                r.ID,
		SourceEntityID:    r.SourceEntityID,
		TargetEntityID:    r.TargetEntityID,
		Type:              r.Type,
		Description:       r.Description,
		Weight:            r.Weight,
		Bidirectional:     r.Bidirectional,
		Confidence:        r.Confidence,
		SourceDocumentIDs: sortedSet(r.SourceDocumentIDs),
		SourceChunkIDs:    sortedSet(r.SourceChunkIDs),
	}
}

// GetGraphHandler returns the workspace's full knowledge graph.
func GetGraphHandler(c echo.Context) error {
	cc := c.(*middleware.AppContext)
	workspace := c.Param("workspace")
	if workspace == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workspace is required")
	}

	ctx := c.Request().Context()
	st := pgxstore.NewGraphDBStorage(cc.App.DBConn, workspace)

	entities, err := st.GetEntities(ctx)
	if err != nil {
		logger.Error("Failed to get entities", "workspace", workspace, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	relationships, err := st.GetRelationships(ctx)
	if err != nil {
		logger.Error("Failed to get relationships", "workspace", workspace, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	entitiesOut := make([]entityJSON, 0, len(entities))
	for _, e := range entities {
		entitiesOut = append(entitiesOut, toEntityJSON(e))
	}
	relationshipsOut := make([]relationshipJSON, 0, len(relationships))
	for _, r := range relationships {
		relationshipsOut = append(relationshipsOut, toRelationshipJSON(r))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"entities":      entitiesOut,
		"relationships": relationshipsOut,
	})
}
