package downloader

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jwheet/MovieHound/internal/store"
)

// Handlers exposes client management over HTTP.
type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers client routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("/types", h.ListTypes)
	g.POST("/test", h.Test)
	g.GET("", h.List)
	g.POST("", h.Save)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/dispatch", h.Dispatch)
}

// ListTypes returns the client registry.
// GET /api/v1/clients/types
func (h *Handlers) ListTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.ListTypes())
}

// Test connects with a configuration that is not saved.
// POST /api/v1/clients/test
func (h *Handlers) Test(c echo.Context) error {
	var input DownloadClient
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.JSON(http.StatusOK, h.service.Test(c.Request().Context(), input.Config()))
}

// List returns saved clients without credentials.
// GET /api/v1/clients
func (h *Handlers) List(c echo.Context) error {
	clients, err := h.service.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, clients)
}

// Save creates or replaces a client.
// POST /api/v1/clients
func (h *Handlers) Save(c echo.Context) error {
	var input DownloadClient
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	saved, err := h.service.Save(c.Request().Context(), &input)
	if err != nil {
		if errors.Is(err, ErrInvalidClient) || errors.Is(err, ErrUnknownClientType) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, saved)
}

// Delete removes a client.
// DELETE /api/v1/clients/:id
func (h *Handlers) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type dispatchRequest struct {
	ResultsFilename string `json:"resultsFilename"`
	Category        string `json:"category"`
}

// Dispatch sends a results list to the client.
// POST /api/v1/clients/:id/dispatch
func (h *Handlers) Dispatch(c echo.Context) error {
	var req dispatchRequest
	if err := c.Bind(&req); err != nil || req.ResultsFilename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "resultsFilename is required")
	}

	result, err := h.service.Dispatch(c.Request().Context(), c.Param("id"), req.ResultsFilename, req.Category)
	switch {
	case errors.Is(err, ErrClientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrClientDisabled), errors.Is(err, store.ErrInvalidFilename),
		errors.Is(err, ErrUnknownClientType), errors.Is(err, ErrNotImplemented):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
