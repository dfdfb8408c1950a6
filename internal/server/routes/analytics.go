package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"

	"github.com/labstack/echo/v4"
)

const defaultAnalyticsLimit = 10

// GetMostConnectedHandler lists the entities with the most active relations.
func GetMostConnectedHandler(c echo.Context) error {
	type mostConnectedParams struct {
		Limit int `query:"limit" validate:"gte=0,lte=1000"`
	}

	params := new(mostConnectedParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c, "Invalid request params")
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c, "Invalid request params")
	}
	if params.Limit == 0 {
		params.Limit = defaultAnalyticsLimit
	}

	return c.JSON(http.StatusOK, middleware.GetApp(c).Service.MostConnected(params.Limit))
}

func GetPredicateStatsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, middleware.GetApp(c).Service.PredicateStats())
}

// SearchEntitiesHandler finds entities by label or alias.
func SearchEntitiesHandler(c echo.Context) error {
	type searchEntitiesParams struct {
		Query string `query:"q" validate:"required"`
		Limit int    `query:"limit" validate:"gte=0,lte=1000"`
	}

	params := new(searchEntitiesParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c, "Invalid request params")
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c, "Invalid request params")
	}
	if params.Limit == 0 {
		params.Limit = defaultAnalyticsLimit
	}

	return c.JSON(http.StatusOK, middleware.GetApp(c).Service.SearchEntities(params.Query, params.Limit))
}

// GetSimilarEntitiesHandler returns the nearest entities in the current
// embedding space.
func GetSimilarEntitiesHandler(c echo.Context) error {
	type similarEntitiesParams struct {
		ID int64 `param:"id" validate:"gte=0"`
		K  int   `query:"k" validate:"gte=0,lte=100"`
	}

	params := new(similarEntitiesParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c, "Invalid request params")
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c, "Invalid request params")
	}
	if params.K == 0 {
		params.K = defaultAnalyticsLimit
	}

	similar, err := middleware.GetApp(c).Service.SimilarEntities(common.EntityID(params.ID), params.K)
	if err != nil {
		return writeError(c, "No similar entities", err)
	}
	return c.JSON(http.StatusOK, similar)
}

// GetRelationshipsHandler returns the active triples around an entity.
func GetRelationshipsHandler(c echo.Context) error {
	type relationshipsParams struct {
		ID int64 `param:"id" validate:"gte=0"`
	}

	params := new(relationshipsParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c, "Invalid request params")
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c, "Invalid request params")
	}

	views, err := middleware.GetApp(c).Service.Relationships(common.EntityID(params.ID))
	if err != nil {
		return writeError(c, "Entity not found", err)
	}
	return c.JSON(http.StatusOK, views)
}
