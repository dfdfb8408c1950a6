package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"

	"github.com/labstack/echo/v4"
)

// TrainHandler trains a new embedding space on the current graph. A graph
// below the minimum size is not an error; the response reports the skip.
func TrainHandler(c echo.Context) error {
	type trainResponse struct {
		Message      string  `json:"message"`
		Skipped      bool    `json:"skipped"`
		Warning      string  `json:"warning,omitempty"`
		SpaceVersion uint64  `json:"space_version,omitempty"`
		Epochs       int     `json:"epochs,omitempty"`
		Loss         float64 `json:"loss,omitempty"`
	}

	app := middleware.GetApp(c)
	ctx := c.Request().Context()

	res, err := app.Service.Train(ctx)
	if err != nil {
		return writeError(c, "Training failed", err)
	}

	resp := trainResponse{Message: "Embeddings trained", Skipped: res.Skipped}
	if res.Warning != nil {
		resp.Message = "Training skipped"
		resp.Warning = res.Warning.Error()
	}
	if res.Space != nil {
		resp.SpaceVersion = res.Space.Version
		resp.Epochs = res.Space.Epochs
		resp.Loss = res.Space.Loss
		if !res.Skipped {
			if err := app.Persist.SaveSpace(ctx, res.Space); err != nil {
				logger.Error("[Server] Failed to persist embedding space", "err", err)
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// GetMetricsHandler evaluates the current graph with the current space.
func GetMetricsHandler(c echo.Context) error {
	app := middleware.GetApp(c)
	ctx := c.Request().Context()

	report, err := app.Service.Evaluate(ctx)
	if err != nil {
		return writeError(c, "Evaluation failed", err)
	}
	if err := app.Persist.SaveEvaluation(ctx, report); err != nil {
		logger.Error("[Server] Failed to persist evaluation", "err", err)
	}
	return c.JSON(http.StatusOK, report)
}
