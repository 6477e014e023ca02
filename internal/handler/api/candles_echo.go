package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"OraclePull/internal/domain/models"
	"OraclePull/internal/usecase"
	xhttp "OraclePull/pkg/http"
	xlogger "OraclePull/pkg/logger"
	"OraclePull/pkg/util"
)

const (
	candleGranularity = 60
	defaultHistory    = 90 * 24 * time.Hour
)

type CandleService interface {
	GetCandles(ctx context.Context, p usecase.GetCandlesParams) (*models.CandlesResponse, error)
}

// CandlesEchoHandler serves chart candles from stored prices.
type CandlesEchoHandler struct {
	logger  *xlogger.Logger
	candles CandleService
	now     func() time.Time
}

func NewCandlesEchoHandler(logger *xlogger.Logger, candles CandleService) *CandlesEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &CandlesEchoHandler{logger: logger, candles: candles, now: time.Now}
}

func (h *CandlesEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/candles/:symbol", h.Candles)
}

func (h *CandlesEchoHandler) Candles(c echo.Context) error {
	req := &CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to := h.window(req.From, req.To)

	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol:  req.Symbol,
		From:    from,
		To:      to,
		Period:  req.Period,
		ChainID: req.PreferableChainID,
		Source:  req.PreferableSource,
	})
	if err != nil {
		appErr := toAppError(err)
		if appErr.Status >= http.StatusInternalServerError {
			h.logger.Error("candles usecase error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, appErr)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "max-age=60")
	// chart clients read the body as is, without the envelope
	return c.JSON(http.StatusOK, res)
}

// window defaults to the last 90 days and widens to whole minutes.
func (h *CandlesEchoHandler) window(from, to int64) (int64, int64) {
	now := h.now()
	if from <= 0 {
		from = now.Add(-defaultHistory).Unix()
	}
	if to <= 0 {
		to = now.Unix()
	}
	return util.FloorUnix(from, candleGranularity), util.CeilUnix(to, candleGranularity)
}
