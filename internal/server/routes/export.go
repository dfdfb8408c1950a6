package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"

	"github.com/labstack/echo/v4"
)

type exportedObject struct {
	Key  string `json:"key"`
	Link string `json:"link,omitempty"`
}

func withLinks(c echo.Context, app *middleware.App, keys []string) []exportedObject {
	objects := make([]exportedObject, 0, len(keys))
	for _, key := range keys {
		link, err := app.Exporter.DownloadLink(c.Request().Context(), key)
		if err != nil {
			logger.Warn("[Server] Failed to presign export", "key", key, "err", err)
		}
		objects = append(objects, exportedObject{Key: key, Link: link})
	}
	return objects
}

func storageUnavailable(c echo.Context) error {
	return c.JSON(http.StatusServiceUnavailable, errorResponse{Message: "Object storage is not configured"})
}

// ExportHandler uploads the snapshot, the active triples, the last
// correction report and the embedding space to object storage.
func ExportHandler(c echo.Context) error {
	type exportBody struct {
		IncludeSpace bool `json:"include_space"`
	}

	type exportResponse struct {
		Message string           `json:"message"`
		Version uint64           `json:"version"`
		Objects []exportedObject `json:"objects,omitempty"`
	}

	app := middleware.GetApp(c)
	if app.Exporter == nil {
		return storageUnavailable(c)
	}

	data := new(exportBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "Invalid request body")
	}

	ctx := c.Request().Context()
	snap := app.Service.Snapshot()
	docs := map[string]any{
		"snapshot": snap,
		"active":   app.Service.Active(),
	}
	if report := app.Service.LastReport(); report != nil {
		docs["correction"] = report
	}
	if space := app.Service.Space(); data.IncludeSpace && space != nil {
		docs["space"] = space
	}

	keys, err := app.Exporter.Export(ctx, app.Persist.GraphID(), docs)
	if err != nil {
		return writeError(c, "Export failed", err)
	}

	return c.JSON(http.StatusOK, exportResponse{
		Message: "Graph exported",
		Version: snap.Version,
		Objects: withLinks(c, app, keys),
	})
}

// ListExportsHandler lists the stored export objects of the graph.
func ListExportsHandler(c echo.Context) error {
	type listResponse struct {
		Objects []exportedObject `json:"objects"`
	}

	app := middleware.GetApp(c)
	if app.Exporter == nil {
		return storageUnavailable(c)
	}
	keys, err := app.Exporter.List(c.Request().Context(), app.Persist.GraphID())
	if err != nil {
		return writeError(c, "Listing exports failed", err)
	}
	return c.JSON(http.StatusOK, listResponse{Objects: withLinks(c, app, keys)})
}
