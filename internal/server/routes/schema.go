package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"

	"github.com/labstack/echo/v4"
)

func GetPredicatesHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, middleware.GetApp(c).Service.Schema().Document())
}

// GetRawTripleSchemaHandler serves the JSON schema of one raw triple for
// extraction clients.
func GetRawTripleSchemaHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, ai.GenerateSchema(common.RawTriple{}))
}
