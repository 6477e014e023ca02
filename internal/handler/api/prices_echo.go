package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	drepo "OraclePull/internal/domain/repository"
	"OraclePull/internal/service/ratelimit"
	"OraclePull/internal/usecase"
	xhttp "OraclePull/pkg/http"
	xlogger "OraclePull/pkg/logger"
)

const (
	defaultLiveWindow = 15 * time.Minute
	maxLiveWindow     = 24 * time.Hour
)

// PricesEchoHandler resolves a window straight from the chain. Each call
// costs RPC round trips so clients are rate limited.
type PricesEchoHandler struct {
	logger   *xlogger.Logger
	resolver usecase.WindowResolver
	feeds    drepo.FeedResolver
	limiter  *ratelimit.Limiter
	now      func() time.Time
}

func NewPricesEchoHandler(
	logger *xlogger.Logger,
	resolver usecase.WindowResolver,
	feeds drepo.FeedResolver,
	limiter *ratelimit.Limiter,
) *PricesEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &PricesEchoHandler{logger: logger, resolver: resolver, feeds: feeds, limiter: limiter, now: time.Now}
}

func (h *PricesEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/prices/:symbol", h.Prices)
}

func (h *PricesEchoHandler) Prices(c echo.Context) error {
	if h.limiter != nil && !h.limiter.Allow(c.RealIP()+":prices") {
		h.logger.Warn("prices rate limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
	}
	req := &PricesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	to := req.To
	if to <= 0 {
		to = h.now().Unix()
	}
	from := req.From
	if from <= 0 {
		from = to - int64(defaultLiveWindow.Seconds())
	}
	if from > to {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("from %d is after to %d", from, to))
	}
	if to-from > int64(maxLiveWindow.Seconds()) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("window is longer than %s", maxLiveWindow))
	}

	network := req.Network
	if network == "" {
		network = h.feeds.DefaultNetwork()
	}
	network = strings.ToUpper(network)
	asset := strings.ToUpper(req.Symbol)
	feed, err := h.feeds.ResolveFeed(network, asset)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}

	points, err := h.resolver.ResolveOn(c.Request().Context(), network, to, from, asset)
	if err != nil {
		appErr := toAppError(err)
		if appErr.Status >= http.StatusInternalServerError {
			h.logger.Error("prices resolve error", xlogger.String("asset", asset), xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, appErr)
	}
	return xhttp.SuccessResponse(c, PricesResponse{
		Network: network,
		Asset:   asset,
		From:    from,
		To:      to,
		Points:  usecase.ToStoredPrices(feed, points),
	})
}
