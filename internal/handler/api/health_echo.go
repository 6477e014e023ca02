package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"OraclePull/internal/usecase"
	xhttp "OraclePull/pkg/http"
	xlogger "OraclePull/pkg/logger"
)

type HealthChecker interface {
	Health(ctx context.Context) error
}

type RefreshStates interface {
	States() []usecase.RefreshState
}

type HealthResponse struct {
	Status  string                 `json:"status"`
	Backend string                 `json:"backend"`
	Storage string                 `json:"storage"`
	Refresh []usecase.RefreshState `json:"refresh"`
	Uptime  string                 `json:"uptime"`
	Checked time.Time              `json:"checked"`
}

type HealthEchoHandler struct {
	logger    *xlogger.Logger
	storage   HealthChecker
	refresher RefreshStates
	backend   string
	started   time.Time
}

// NewHealthEchoHandler reports storage reachability and refresh progress.
// storage and refresher may be nil when the process runs without them.
func NewHealthEchoHandler(logger *xlogger.Logger, storage HealthChecker, refresher RefreshStates, backend string) *HealthEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &HealthEchoHandler{logger: logger, storage: storage, refresher: refresher, backend: backend, started: time.Now()}
}

func (h *HealthEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
}

func (h *HealthEchoHandler) Health(c echo.Context) error {
	res := HealthResponse{
		Status:  "ok",
		Backend: h.backend,
		Storage: "disabled",
		Refresh: []usecase.RefreshState{},
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
		Checked: time.Now().UTC(),
	}
	if h.refresher != nil {
		res.Refresh = h.refresher.States()
	}

	status := http.StatusOK
	if h.storage != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.storage.Health(ctx); err != nil {
			h.logger.Warn("storage health check failed", xlogger.Error(err))
			res.Status, res.Storage = "degraded", "down"
			status = http.StatusServiceUnavailable
		} else {
			res.Storage = "up"
		}
	}
	return xhttp.DataResponse(c, status, res)
}
