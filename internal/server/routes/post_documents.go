package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/stratum-kg/stratum/internal/queue"
	"github.com/stratum-kg/stratum/internal/server/middleware"
	"github.com/stratum-kg/stratum/internal/storage"
	"github.com/stratum-kg/stratum/pkg/common"
	"github.com/stratum-kg/stratum/pkg/loader"
	"github.com/stratum-kg/stratum/pkg/logger"
)

// Inline content above this size is uploaded to the object store instead
// of travelling through the message queue.
const inlineSourceLimit = 128 * 1024

// CreateDocumentHandler accepts a document for asynchronous processing.
// The body carries either inline content or a source reference; the
// response returns the generated document id with status pending.
func CreateDocumentHandler(c echo.Context) error {
	type createDocumentBody struct {
		Content  string         `json:"content"`
		Source   *loader.Source `json:"source"`
		Title    string         `json:"title"`
		Filename string         `json:"filename"`
		Tags     []string       `json:"tags"`
	}

	type createDocumentResponse struct {
		Message    string                `json:"message"`
		DocumentID string                `json:"document_id,omitempty"`
		Status     common.DocumentStatus `json:"status,omitempty"`
	}

	cc := c.(*middleware.AppContext)
	workspace := c.Param("workspace")
	if workspace == "" {
		return c.JSON(http.StatusBadRequest, createDocumentResponse{Message: "Workspace is required"})
	}

	data := new(createDocumentBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createDocumentResponse{Message: "Invalid request body"})
	}
	if data.Content == "" && data.Source == nil {
		return c.JSON(http.StatusBadRequest, createDocumentResponse{Message: "Either content or source is required"})
	}

	id, err := gonanoid.New()
	if err != nil {
		logger.Error("Failed to generate document id", "err", err)
		return c.JSON(http.StatusInternalServerError, createDocumentResponse{Message: "Internal server error"})
	}

	ctx := c.Request().Context()

	var source loader.Source
	switch {
	case data.Source != nil:
		source = *data.Source
	case cc.App.S3 != nil && len(data.Content) > inlineSourceLimit:
		key, err := storage.PutDocument(ctx, cc.App.S3, workspace, id, data.Content)
		if err != nil {
			logger.Error("Failed to upload document content", "err", err)
			return c.JSON(http.StatusInternalServerError, createDocumentResponse{Message: "Internal server error"})
		}
		source = loader.Source{Kind: loader.SourceKindS3, Ref: key}
	default:
		source = loader.Source{Kind: loader.SourceKindInline, Text: data.Content}
	}

	msg := queue.IngestMessage{
		Workspace:  workspace,
		DocumentID: id,
		Metadata: common.DocumentMetadata{
			Title:     data.Title,
			Filename:  data.Filename,
			SizeBytes: len(data.Content),
			Tags:      data.Tags,
		},
		Source: source,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Failed to marshal ingest message", "err", err)
		return c.JSON(http.StatusInternalServerError, createDocumentResponse{Message: "Internal server error"})
	}

	if err := queue.Publish(cc.App.Queue, queue.IngestQueue, body); err != nil {
		logger.Error("Failed to publish ingest message", "err", err)
		return c.JSON(http.StatusInternalServerError, createDocumentResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusAccepted, createDocumentResponse{
		Message:    "Document queued for processing",
		DocumentID: id,
		Status:     common.DocumentStatusPending,
	})
}
