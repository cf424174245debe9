package jobs

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers exposes refresh jobs over HTTP.
type Handlers struct {
	manager *Manager
}

func NewHandlers(manager *Manager) *Handlers {
	return &Handlers{manager: manager}
}

// RegisterRoutes registers job routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Start)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/cancel", h.Cancel)
}

type startResponse struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Start begins a refresh of one pending list.
// POST /api/v1/jobs
func (h *Handlers) Start(c echo.Context) error {
	var p Params
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	id, existing, err := h.manager.Start(p)
	if err != nil {
		if errors.Is(err, ErrInvalidParams) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if existing {
		return c.JSON(http.StatusOK, startResponse{JobID: id, Status: "existing", Message: "Already running"})
	}
	return c.JSON(http.StatusAccepted, startResponse{JobID: id, Status: "started"})
}

// List returns every job still in the table.
// GET /api/v1/jobs
func (h *Handlers) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.List())
}

// Get returns one job.
// GET /api/v1/jobs/:id
func (h *Handlers) Get(c echo.Context) error {
	job, ok := h.manager.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, ErrJobNotFound.Error())
	}
	return c.JSON(http.StatusOK, job)
}

// Cancel removes a job from the table.
// POST /api/v1/jobs/:id/cancel
func (h *Handlers) Cancel(c echo.Context) error {
	if err := h.manager.Cancel(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Cancelled", "status": string(StatusCancelled)})
}
