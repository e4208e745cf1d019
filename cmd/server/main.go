package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/tourism-booking/internal/bootstrap"
	"github.com/iliyamo/tourism-booking/internal/clock"
	"github.com/iliyamo/tourism-booking/internal/config"
	"github.com/iliyamo/tourism-booking/internal/handler"
	"github.com/iliyamo/tourism-booking/internal/idempotency"
	"github.com/iliyamo/tourism-booking/internal/logging"
	"github.com/iliyamo/tourism-booking/internal/metrics"
	"github.com/iliyamo/tourism-booking/internal/middleware"
	"github.com/iliyamo/tourism-booking/internal/queue"
	"github.com/iliyamo/tourism-booking/internal/router"
	"github.com/iliyamo/tourism-booking/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}
	cfg := config.Load()
	rcfg := config.LoadReservationConfig()

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := bootstrap.OpenStore(ctx, cfg.StoreConfig, rcfg.LockTimeout, logger)
	if err != nil {
		logger.Fatal("open store", zap.String("driver", cfg.Driver), zap.Error(err))
	}
	defer st.Close()
	store, pingers := st.Store, st.Pingers

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	clk := clock.NewSystem()

	// Redis is optional: without it idempotency keys live in process memory
	// and availability responses are not cached.
	rdb := config.NewRedisClient()
	var idem service.IdempotencyStore
	if rdb != nil {
		defer rdb.Close()
		idem = idempotency.NewRedisStore(rdb, "idem", rcfg.IdempotencyTTL)
		pingers["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		logger.Warn("redis unavailable; idempotency is per-process and caching is off")
		idem = idempotency.NewMemoryStore(clk, rcfg.IdempotencyTTL)
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithIdempotency(idem),
		service.WithRetry(rcfg.MaxRetries, rcfg.RetryBackoff),
		service.WithLimits(rcfg.MaxStayNights, rcfg.MaxQuantity),
		service.WithAvailabilityWindow(rcfg.MaxAvailDays),
		service.WithNotifyTimeout(rcfg.NotifyTimeout),
	}
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL, logger,
			queue.WithDialTimeout(rcfg.NotifyTimeout),
			queue.WithFailureHook(m.ObserveNotificationFailure),
		)
		defer pub.Close()
		opts = append(opts, service.WithNotifier(pub))
	} else {
		logger.Warn("RABBITMQ_URL not set; booking events are not published")
	}
	bookings := service.NewBookingService(store, clk, opts...)
	inventory := service.NewInventoryService(store, clk, logger)

	e := newServer(logger, m)
	router.RegisterRoutes(e, pingers, handler.NewAvailabilityHandler(bookings, logger),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	bh := handler.NewBookingHandler(bookings, logger)
	router.RegisterBookings(e, bh, cfg.JWTSecret)
	router.RegisterAdmin(e, bh, handler.NewAdminHandler(inventory, logger), cfg.JWTSecret)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("driver", cfg.Driver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
}

func newServer(logger *zap.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger, m))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, "Idempotency-Key"},
	}))
	return e
}
