package server

import (
	"github.com/labstack/echo/v4"

	"github.com/stratum-kg/stratum/internal/server/middleware"
	"github.com/stratum-kg/stratum/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Document routes
	apiRoutes.POST("/workspaces/:workspace/documents", routes.CreateDocumentHandler)
	apiRoutes.GET("/workspaces/:workspace/documents", routes.ListDocumentsHandler)
	apiRoutes.GET("/workspaces/:workspace/documents/:id", routes.GetDocumentHandler)
	apiRoutes.DELETE("/workspaces/:workspace/documents/:id", routes.DeleteDocumentHandler)

	// Graph routes
	apiRoutes.GET("/workspaces/:workspace/graph", routes.GetGraphHandler)
	apiRoutes.POST("/workspaces/:workspace/search", routes.SearchChunksHandler)

	// Workspace routes
	apiRoutes.DELETE("/workspaces/:workspace", routes.DeleteWorkspaceHandler)
}
