package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CorrectHandler runs a correction pass and returns its report.
func CorrectHandler(c echo.Context) error {
	app := middleware.GetApp(c)
	ctx := c.Request().Context()

	report, err := app.Service.Correct(ctx)
	if err != nil {
		return writeError(c, "Correction pass failed", err)
	}
	if err := app.Persist.SaveCorrection(ctx, app.Service, report); err != nil {
		logger.Error("[Server] Failed to persist correction", "pass", report.PassID, "err", err)
	}
	return c.JSON(http.StatusOK, report)
}

// GetLastCorrectionHandler returns the report of the latest pass, falling
// back to the stored one after a restart.
func GetLastCorrectionHandler(c echo.Context) error {
	app := middleware.GetApp(c)

	report := app.Service.LastReport()
	if report == nil {
		stored, err := app.Persist.LatestCorrection(c.Request().Context())
		if err != nil {
			return writeError(c, "Failed to load correction report", err)
		}
		report = stored
	}
	if report == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Message: "No correction pass has run yet"})
	}
	return c.JSON(http.StatusOK, report)
}

// CycleHandler measures, corrects, retrains and measures again.
func CycleHandler(c echo.Context) error {
	app := middleware.GetApp(c)
	ctx := c.Request().Context()

	cycle, err := app.Service.Cycle(ctx)
	if err != nil {
		return writeError(c, "Correction cycle failed", err)
	}
	if err := app.Persist.SaveCycle(ctx, app.Service, cycle); err != nil {
		logger.Error("[Server] Failed to persist cycle", "err", err)
	}
	return c.JSON(http.StatusOK, cycle)
}
