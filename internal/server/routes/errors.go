package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func errorStatus(err error) int {
	var inputErr *common.InputError
	switch {
	case errors.As(err, &inputErr):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrUnknownEntity), errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case common.IsConsistencyFault(err):
		return http.StatusInternalServerError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto a status code. Internal errors are logged and
// only their message is hidden from the client.
func writeError(c echo.Context, message string, err error) error {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("[Server] "+message, "path", c.Path(), "err", err)
		return c.JSON(status, errorResponse{Message: message})
	}
	return c.JSON(status, errorResponse{Message: message, Error: err.Error()})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Message: message})
}
