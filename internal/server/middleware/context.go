package middleware

import (
	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/persist"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/storage"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/correction"

	"github.com/labstack/echo/v4"
)

// App holds the long-lived dependencies shared by all handlers.
type App struct {
	Service  *correction.Service
	Persist  *persist.Persister
	Exporter *storage.Exporter
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}

// GetApp returns the App attached by AppContextMiddleware.
func GetApp(c echo.Context) *App {
	return c.(*AppContext).App
}
