package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"OraclePull/internal/handler/ws"
	mid "OraclePull/internal/middleware"
	"OraclePull/internal/service/ratelimit"
	"OraclePull/internal/usecase"
	"OraclePull/pkg/config"
	xhttp "OraclePull/pkg/http"
	pkgkafka "OraclePull/pkg/kafka"
	applogger "OraclePull/pkg/logger"
	"OraclePull/pkg/queue"
)

// Deps are the long-running components App starts and stops. Consumer,
// Queue and Producer are nil when their feature is disabled.
type Deps struct {
	HTTP      *xhttp.Server
	Pipeline  *mid.SinkPipeline
	Sink      *usecase.PriceSink
	Refresher *usecase.PriceRefresher
	Consumer  *pkgkafka.Consumer
	Queue     *queue.RedisQueue
	Producer  *pkgkafka.Producer
	Hub       *ws.Hub
	Limiter   *ratelimit.Limiter
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg  *config.Config
	l    *applogger.Logger
	deps Deps
}

func New(cfg *config.Config, l *applogger.Logger, deps Deps) *App {
	if cfg.Log.Collect && deps.Producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: cfg.Log.FlushInterval,
			Topic:        cfg.Kafka.LogTopic,
			Publisher:    deps.Producer,
		})
	}
	return &App{cfg: cfg, l: l, deps: deps}
}

// Run starts every component and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}
	<-ctx.Done()
	a.l.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Start launches the sink pipeline, the consumers, the refresher and the
// HTTP server, in that order.
func (a *App) Start(ctx context.Context) error {
	d := a.deps
	d.Pipeline.Start(ctx)

	if d.Consumer != nil {
		if err := d.Consumer.Start(ctx); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.Topic))
	}
	if d.Queue != nil {
		if err := d.Queue.Start(ctx); err != nil {
			a.l.Error("backfill queue start error", applogger.Error(err))
			return err
		}
	}
	if a.cfg.Refresh.Enabled {
		if err := d.Refresher.Start(ctx); err != nil {
			a.l.Error("price refresher start error", applogger.Error(err))
			return err
		}
	} else {
		a.l.Warn("price refresh disabled")
	}
	go a.sweepLimiter(ctx)

	if err := d.HTTP.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("oraclepull started",
		applogger.String("backend", d.Sink.Backend()),
		applogger.String("profile", a.cfg.Oracle.Profile))
	return nil
}

// Shutdown stops components in reverse start order. Errors are logged and
// the first one is returned.
func (a *App) Shutdown(ctx context.Context) error {
	d := a.deps
	a.l.Info("shutting down...")
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := d.HTTP.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		keep(err)
	}
	d.Hub.Close()
	if err := d.Refresher.Stop(ctx); err != nil {
		a.l.Warn("refresher stop error", applogger.Error(err))
		keep(err)
	}
	if d.Queue != nil {
		if err := d.Queue.Stop(ctx); err != nil {
			a.l.Warn("backfill queue stop error", applogger.Error(err))
			keep(err)
		}
	}
	if d.Consumer != nil {
		if err := d.Consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
			keep(err)
		}
	}
	// drains whatever the sink rejected while running
	d.Pipeline.Stop(ctx)
	// the collector flushes through the producer the sink closes
	a.l.RemoveCollector()
	if err := d.Sink.Close(); err != nil {
		a.l.Warn("sink close error", applogger.Error(err))
		keep(err)
	}

	a.l.Info("shutdown complete")
	return firstErr
}

func (a *App) sweepLimiter(ctx context.Context) {
	if a.deps.Limiter == nil {
		return
	}
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.deps.Limiter.Sweep(10 * time.Minute); n > 0 {
				a.l.Debug("rate limiter swept", applogger.Int("keys", n))
			}
		}
	}
}
