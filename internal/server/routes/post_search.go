package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stratum-kg/stratum/internal/server/middleware"
	"github.com/stratum-kg/stratum/pkg/common"
	"github.com/stratum-kg/stratum/pkg/logger"
	pgxstore "github.com/stratum-kg/stratum/pkg/store/pgx"
)

type chunkJSON struct {
	ID              string             `json:"id"`
	DocumentID      string             `json:"document_id"`
	SequenceIndex   int                `json:"sequence_index"`
	Heading         string             `json:"heading,omitempty"`
	Text            string             `json:"text"`
	EntityIDs       []string           `json:"entity_ids"`
	RelationshipIDs []string           `json:"relationship_ids"`
	Status          common.ChunkStatus `json:"status"`
}

// SearchChunksHandler embeds the query text and returns the most similar
// chunks in the workspace.
func SearchChunksHandler(c echo.Context) error {
	type searchBody struct {
		Query string `json:"query" validate:"required"`
		Limit int    `json:"limit"`
	}

	cc := c.(*middleware.AppContext)
	workspace := c.Param("workspace")
	if workspace == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workspace is required")
	}

	data := new(searchBody)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	ctx := c.Request().Context()
	embedding := cc.App.Embedder.Embed(ctx, data.Query)

	st := pgxstore.NewGraphDBStorage(cc.App.DBConn, workspace)
	chunks, err := st.QuerySimilarChunks(ctx, embedding, data.Limit)
	if err != nil {
		logger.Error("Failed to query similar chunks", "workspace", workspace, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	out := make([]chunkJSON, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, chunkJSON{
			ID:              chunk.ID,
			DocumentID:      chunk.DocumentID,
			SequenceIndex:   chunk.SequenceIndex,
			Heading:         chunk.Heading,
			Text:            chunk.Text,
			EntityIDs:       chunk.EntityIDs,
			RelationshipIDs: chunk.RelationshipIDs,
			Status:          chunk.Status,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"chunks": out})
}
