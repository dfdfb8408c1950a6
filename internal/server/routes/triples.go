package routes

import (
	"net/http"
	"strconv"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/correction"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PostTriplesHandler ingests a batch of raw triples. Invalid triples are
// reported per index and do not fail the batch.
func PostTriplesHandler(c echo.Context) error {
	type postTriplesResponse struct {
		Message string                   `json:"message"`
		Result  *correction.IngestResult `json:"result,omitempty"`
	}

	data := new(common.RawTripleBatch)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if data.Triples == nil {
		return badRequest(c, "Field triples is required")
	}

	app := middleware.GetApp(c)
	ctx := c.Request().Context()

	res, err := app.Service.Ingest(ctx, data.Triples)
	if err != nil {
		return writeError(c, "Failed to ingest triples", err)
	}
	if res.Accepted > 0 {
		if err := app.Persist.SaveGraph(ctx, app.Service); err != nil {
			logger.Error("[Server] Failed to persist graph", "err", err)
		}
	}

	status := http.StatusOK
	message := "Triples ingested"
	if res.Queued {
		status = http.StatusAccepted
		message = "Triples queued behind a running correction pass"
	}
	return c.JSON(status, postTriplesResponse{Message: message, Result: &res})
}

// GetTriplesHandler lists the active triples, optionally filtered.
func GetTriplesHandler(c echo.Context) error {
	type getTriplesParams struct {
		Predicate string `query:"predicate"`
		Entity    string `query:"entity"`
	}

	params := new(getTriplesParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c, "Invalid request params")
	}

	app := middleware.GetApp(c)
	predicate := common.NormalizePredicate(params.Predicate)

	entity := common.EntityID(-1)
	if params.Entity != "" {
		id, err := strconv.ParseInt(params.Entity, 10, 64)
		if err != nil {
			return badRequest(c, "Invalid entity id")
		}
		e, err := app.Service.Entity(common.EntityID(id))
		if err != nil {
			return writeError(c, "Entity not found", err)
		}
		entity = e.ID
	}

	views := app.Service.Active()
	out := make([]common.TripleView, 0, len(views))
	for _, v := range views {
		if predicate != "" && v.Predicate != predicate {
			continue
		}
		if entity >= 0 && v.Subject.ID != entity && v.Object.ID != entity {
			continue
		}
		out = append(out, v)
	}
	return c.JSON(http.StatusOK, out)
}

// GetTripleHandler returns one triple with its provenance, active or not.
func GetTripleHandler(c echo.Context) error {
	type getTripleParams struct {
		ID int64 `param:"id" validate:"gte=0"`
	}

	params := new(getTripleParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c, "Invalid request params")
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c, "Invalid request params")
	}

	t, err := middleware.GetApp(c).Service.Triple(common.TripleID(params.ID))
	if err != nil {
		return writeError(c, "Triple not found", err)
	}
	return c.JSON(http.StatusOK, t)
}
