package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"

	"github.com/labstack/echo/v4"
)

func GetEntitiesHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, middleware.GetApp(c).Service.Entities())
}

// GetEntityHandler resolves id through merges and returns the canonical
// entity.
func GetEntityHandler(c echo.Context) error {
	type getEntityParams struct {
		ID int64 `param:"id" validate:"gte=0"`
	}

	params := new(getEntityParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c, "Invalid request params")
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c, "Invalid request params")
	}

	entity, err := middleware.GetApp(c).Service.Entity(common.EntityID(params.ID))
	if err != nil {
		return writeError(c, "Entity not found", err)
	}
	return c.JSON(http.StatusOK, entity)
}

// MergeEntitiesHandler folds entity from into entity into.
func MergeEntitiesHandler(c echo.Context) error {
	type mergeEntitiesBody struct {
		From *int64 `json:"from" validate:"required,gte=0"`
		Into *int64 `json:"into" validate:"required,gte=0"`
	}

	type mergeEntitiesResponse struct {
		Message string         `json:"message"`
		Entity  *common.Entity `json:"entity,omitempty"`
	}

	data := new(mergeEntitiesBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c, "Invalid request body")
	}

	app := middleware.GetApp(c)
	ctx := c.Request().Context()

	survivor, err := app.Service.MergeEntities(ctx, common.EntityID(*data.From), common.EntityID(*data.Into))
	if err != nil {
		return writeError(c, "Failed to merge entities", err)
	}
	if err := app.Persist.SaveGraph(ctx, app.Service); err != nil {
		logger.Error("[Server] Failed to persist graph", "err", err)
	}

	entity, err := app.Service.Entity(survivor)
	if err != nil {
		return writeError(c, "Failed to load merged entity", err)
	}
	return c.JSON(http.StatusOK, mergeEntitiesResponse{
		Message: "Entities merged",
		Entity:  &entity,
	})
}
