package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stratum-kg/stratum/internal/queue"
	"github.com/stratum-kg/stratum/internal/server/middleware"
	"github.com/stratum-kg/stratum/internal/storage"
	"github.com/stratum-kg/stratum/pkg/logger"
	"github.com/stratum-kg/stratum/pkg/store"
	pgxstore "github.com/stratum-kg/stratum/pkg/store/pgx"
)

// DeleteDocumentHandler queues a document for deletion. The worker
// removes the document, its chunks, and its provenance contribution.
func DeleteDocumentHandler(c echo.Context) error {
	cc := c.(*middleware.AppContext)
	workspace := c.Param("workspace")
	id := c.Param("id")
	if workspace == "" || id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workspace and id are required")
	}

	ctx := c.Request().Context()
	st := pgxstore.NewGraphDBStorage(cc.App.DBConn, workspace)
	if _, err := st.GetDocument(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		logger.Error("Failed to get document", "workspace", workspace, "document_id", id, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	msg := queue.DeleteMessage{
		Workspace:  workspace,
		DocumentID: id,
	}
	if cc.App.S3 != nil {
		msg.ObjectKey = storage.DocumentKey(workspace, id)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Failed to marshal delete message", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	if err := queue.Publish(cc.App.Queue, queue.DeleteQueue, body); err != nil {
		logger.Error("Failed to publish delete message", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"message":     "Document queued for deletion",
		"document_id": id,
	})
}

// DeleteWorkspaceHandler queues the removal of every document, chunk,
// entity, and relationship in a workspace, along with any uploaded
// content below the workspace prefix.
func DeleteWorkspaceHandler(c echo.Context) error {
	cc := c.(*middleware.AppContext)
	workspace := c.Param("workspace")
	if workspace == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workspace is required")
	}

	body, err := json.Marshal(queue.DeleteMessage{Workspace: workspace})
	if err != nil {
		logger.Error("Failed to marshal delete message", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	if err := queue.Publish(cc.App.Queue, queue.DeleteQueue, body); err != nil {
		logger.Error("Failed to publish delete message", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"message":   "Workspace queued for deletion",
		"workspace": workspace,
	})
}
