package api

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	drepo "OraclePull/internal/domain/repository"
	"OraclePull/internal/usecase"
	xhttp "OraclePull/pkg/http"
	xlogger "OraclePull/pkg/logger"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error)
}

// BackfillEchoHandler queues backfill jobs for the workers.
type BackfillEchoHandler struct {
	logger  *xlogger.Logger
	queue   Enqueuer
	feeds   drepo.FeedResolver
	network string
}

func NewBackfillEchoHandler(logger *xlogger.Logger, queue Enqueuer, feeds drepo.FeedResolver, network string) *BackfillEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if network == "" {
		network = feeds.DefaultNetwork()
	}
	return &BackfillEchoHandler{logger: logger, queue: queue, feeds: feeds, network: network}
}

func (h *BackfillEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/backfill/:symbol", h.Backfill)
}

func (h *BackfillEchoHandler) Backfill(c echo.Context) error {
	req := &BackfillRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	asset := strings.ToUpper(req.Symbol)
	if _, err := h.feeds.ResolveFeed(h.network, asset); err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	if req.Until > 0 && req.Before > 0 && req.Until >= req.Before {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("until %d must be before %d", req.Until, req.Before))
	}

	payload := usecase.BackfillPayload{Asset: asset, Before: req.Before, Until: req.Until}
	id, err := h.queue.Enqueue(c.Request().Context(), usecase.BackfillJobType, payload)
	if err != nil {
		h.logger.Error("enqueue backfill failed", xlogger.String("asset", asset), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("backfill queue unavailable").WithError(err))
	}
	h.logger.Info("backfill queued", xlogger.String("asset", asset), xlogger.String("job_id", id))
	return xhttp.AcceptedResponse(c, BackfillResponse{JobID: id, Asset: asset, Before: req.Before, Until: req.Until})
}
