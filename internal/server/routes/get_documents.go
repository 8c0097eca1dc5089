package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stratum-kg/stratum/internal/server/middleware"
	"github.com/stratum-kg/stratum/pkg/common"
	"github.com/stratum-kg/stratum/pkg/logger"
	"github.com/stratum-kg/stratum/pkg/store"
	pgxstore "github.com/stratum-kg/stratum/pkg/store/pgx"
)

type documentJSON struct {
	ID       string                  `json:"id"`
	Metadata common.DocumentMetadata `json:"metadata"`
	Status   common.DocumentStatus   `json:"status"`
}

func toDocumentJSON(doc common.Document) documentJSON {
	return documentJSON{
		ID:       doc.ID,
		Metadata: doc.Metadata,
		Status:   doc.Status,
	}
}

// ListDocumentsHandler returns every document in the workspace, without
// content.
func ListDocumentsHandler(c echo.Context) error {
	cc := c.(*middleware.AppContext)
	workspace := c.Param("workspace")
	if workspace == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workspace is required")
	}

	st := pgxstore.NewGraphDBStorage(cc.App.DBConn, workspace)
	docs, err := st.ListDocuments(c.Request().Context())
	if err != nil {
		logger.Error("Failed to list documents", "workspace", workspace, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	out := make([]documentJSON, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDocumentJSON(doc))
	}
	return c.JSON(http.StatusOK, map[string]any{"documents": out})
}

// GetDocumentHandler returns one document including its content.
func GetDocumentHandler(c echo.Context) error {
	cc := c.(*middleware.AppContext)
	workspace := c.Param("workspace")
	id := c.Param("id")
	if workspace == "" || id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workspace and id are required")
	}

	st := pgxstore.NewGraphDBStorage(cc.App.DBConn, workspace)
	doc, err := st.GetDocument(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		logger.Error("Failed to get document", "workspace", workspace, "document_id", id, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"document": toDocumentJSON(doc),
		"content":  doc.Content,
	})
}
