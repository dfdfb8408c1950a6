package server

import (
	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Triple routes
	apiRoutes.POST("/triples", routes.PostTriplesHandler)
	apiRoutes.GET("/triples", routes.GetTriplesHandler)
	apiRoutes.GET("/triples/:id", routes.GetTripleHandler)

	// Correction routes
	apiRoutes.POST("/correct", routes.CorrectHandler)
	apiRoutes.GET("/correct/last", routes.GetLastCorrectionHandler)
	apiRoutes.POST("/cycle", routes.CycleHandler)

	// Entity routes
	apiRoutes.GET("/entities", routes.GetEntitiesHandler)
	apiRoutes.GET("/entities/search", routes.SearchEntitiesHandler)
	apiRoutes.GET("/entities/:id", routes.GetEntityHandler)
	apiRoutes.GET("/entities/:id/relationships", routes.GetRelationshipsHandler)
	apiRoutes.GET("/entities/:id/similar", routes.GetSimilarEntitiesHandler)
	apiRoutes.POST("/entities/merge", routes.MergeEntitiesHandler)

	// Analytics routes
	apiRoutes.GET("/analytics/connected", routes.GetMostConnectedHandler)
	apiRoutes.GET("/analytics/predicates", routes.GetPredicateStatsHandler)

	// Embedding and evaluation routes
	apiRoutes.POST("/embeddings/train", routes.TrainHandler)
	apiRoutes.GET("/metrics", routes.GetMetricsHandler)

	apiRoutes.POST("/export", routes.ExportHandler)
	apiRoutes.GET("/exports", routes.ListExportsHandler)

	// Schema routes
	apiRoutes.GET("/schema/predicates", routes.GetPredicatesHandler)
	apiRoutes.GET("/schema/raw-triple", routes.GetRawTripleSchemaHandler)
}
