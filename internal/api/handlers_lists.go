package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jwheet/MovieHound/internal/magnet"
	"github.com/jwheet/MovieHound/internal/store"
)

// addManualMagnet moves a pending item into its results list with a
// user-supplied magnet.
// POST /api/v1/manual-magnet
func (s *Server) addManualMagnet(c echo.Context) error {
	var input store.ManualMagnet
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if input.PendingFile == "" || input.CatalogID == "" || input.Locator == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "errorsFilename, tmdbId and magnetLink are required")
	}

	row, err := s.deps.Lists.AddManualMagnet(input)
	switch {
	case errors.Is(err, store.ErrRowNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "movie not found in pending list")
	case errors.Is(err, store.ErrInvalidFilename), errors.Is(err, magnet.ErrInvalidLocator):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"movie":   row,
	})
}

// cleanup runs one duplicate sweep over the lists directory.
// POST /api/v1/cleanup
func (s *Server) cleanup(c echo.Context) error {
	report, err := s.deps.Lists.Cleanup(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

// listHistory returns conversion history, newest first.
// GET /api/v1/history
func (s *Server) listHistory(c echo.Context) error {
	entries, err := s.deps.History.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}

// deleteHistory drops an entry together with both of its lists.
// DELETE /api/v1/history/:resultsFilename
func (s *Server) deleteHistory(c echo.Context) error {
	err := s.deps.History.Delete(c.Request().Context(), c.Param("resultsFilename"))
	switch {
	case errors.Is(err, store.ErrHistoryNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidFilename):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
