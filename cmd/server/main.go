package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Syzygyastro/Orderbook/internal/api"
	"github.com/Syzygyastro/Orderbook/internal/cache"
	"github.com/Syzygyastro/Orderbook/internal/config"
	"github.com/Syzygyastro/Orderbook/internal/engine"
	"github.com/Syzygyastro/Orderbook/internal/logger"
	"github.com/Syzygyastro/Orderbook/internal/messaging"
	"github.com/Syzygyastro/Orderbook/internal/metrics"
	"github.com/Syzygyastro/Orderbook/internal/middleware"
	"github.com/Syzygyastro/Orderbook/internal/models"
	"github.com/Syzygyastro/Orderbook/internal/service"
	"github.com/Syzygyastro/Orderbook/internal/ws"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	dispatcher := newEventDispatcher(cfg, log, appMetrics)

	var opts []service.Option
	opts = append(opts, service.WithLogger(log), service.WithMetrics(appMetrics))
	if dispatcher != nil {
		opts = append(opts, service.WithEvents(dispatcher))
	}
	orders := service.NewOrderService(engine.NewOrderBook(), opts...)

	var (
		feed      *cache.Feed
		tradeFeed api.TradeFeed
		adminOpts []api.AdminOption
	)
	if cfg.RedisEnabled {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		redisCache, err := cache.NewRedisCache(dialCtx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		cancel()
		if err != nil {
			log.Warn("redis cache not available", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			log.Info("redis cache connected", zap.String("addr", cfg.RedisAddr))
			defer redisCache.Close()

			breaker := middleware.NewCircuitBreaker("redis", middleware.DefaultCircuitBreakerConfig())
			feed = cache.NewFeed(redisCache, 4096, breaker, log, appMetrics)
			orders.OnTrade(func(trades []models.TradeRecord) { feed.PushTrades(trades) })
			orders.OnTopUpdate(func(u service.BookUpdate) { feed.PushTop(u.BestBid, u.BestAsk) })

			go cache.NewSnapshotWriter(redisCache, orders, cfg.RedisSnapshotInterval, log).Run(ctx)

			tradeFeed = redisCache
			adminOpts = append(adminOpts, api.WithRedis(redisCache), api.WithBreakers(breaker))
		}
	}

	var wsHandler *ws.Handler
	var hub *ws.Hub
	if cfg.WSEnabled {
		hub = ws.NewHub(ws.HubConfig{HeartbeatInterval: cfg.WSHeartbeatInterval}, orders, log, appMetrics)
		go hub.Run()
		orders.OnTrade(hub.PublishTrades)
		orders.OnBookUpdate(func(u service.BookUpdate) { hub.PublishBook(u.Book, u.Version) })
		wsHandler = ws.NewHandler(hub)
		adminOpts = append(adminOpts, api.WithConnections(hub))
		log.Info("websocket hub started")
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.RouterConfig{
		Logger:  log,
		Metrics: appMetrics,
		Handler: api.NewHandler(orders, tradeFeed, cfg.DepthDefaultLevels),
		Admin:   api.NewAdminHandler(orders, reg, version, adminOpts...),
		WS:      wsHandler,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		AllowOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("order book listening", zap.String("addr", cfg.ServerAddr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if hub != nil {
		hub.Stop()
	}
	if feed != nil {
		if err := feed.Close(shutdownCtx); err != nil {
			log.Warn("cache feed did not drain", zap.Error(err))
		}
	}
	if dispatcher != nil {
		if err := dispatcher.Close(shutdownCtx); err != nil {
			log.Warn("event dispatcher did not drain", zap.Error(err))
		}
	}
	return nil
}

// newEventDispatcher connects the configured brokers. It returns nil when
// no broker is enabled or reachable.
func newEventDispatcher(cfg *config.Config, log *zap.Logger, m *metrics.Metrics) *messaging.Dispatcher {
	var sinks []messaging.Publisher

	if cfg.RabbitMQEnabled {
		pub, err := messaging.NewAMQPPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, log)
		if err != nil {
			log.Warn("rabbitmq publisher not available", zap.Error(err))
		} else {
			log.Info("rabbitmq publisher connected", zap.String("exchange", cfg.RabbitMQExchange))
			sinks = append(sinks, pub)
		}
	}

	if cfg.KafkaEnabled {
		sinks = append(sinks, messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log))
		log.Info("kafka publisher configured", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	if len(sinks) == 0 {
		return nil
	}

	// Events carry event_id; a retry after a partial fan-out failure may
	// deliver twice to the healthy sink.
	var pub messaging.Publisher = messaging.NewMultiPublisher(sinks...)
	if len(sinks) == 1 {
		pub = sinks[0]
	}

	return messaging.NewDispatcher(
		pub,
		8192,
		messaging.DefaultRetryConfig(),
		log,
		m.RecordPublish,
	)
}
