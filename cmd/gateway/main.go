package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/admission"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/feed"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/server"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/tap"
	"github.com/shubham-shewale/basis-hub/pkg/config"
	"github.com/shubham-shewale/basis-hub/pkg/models"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.App.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	m := metrics.New()

	// Dependency Injection: the hub only knows the upstream factory
	upstreams := feed.NewUpstreamFactory(map[models.Venue]string{
		models.VenueSpot:    cfg.Hub.SpotURL,
		models.VenueFutures: cfg.Hub.FuturesURL,
	}, nil, cfg.Hub.ReconnectDelay, m, logger.Named("feed"))

	marketHub := hub.NewHub(hub.Options{
		Debounce:    cfg.Hub.Debounce,
		MaxSymbols:  cfg.Hub.MaxSymbols,
		BasisMaxAge: cfg.Hub.BasisMaxAge,
	}, upstreams, m, logger.Named("hub"))

	var rdb *redis.Client
	if cfg.Gateway.RateBackend == "redis" || cfg.Mirror.RedisEnabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	var limiter repository.RateLimiter
	if cfg.Gateway.RateBackend == "redis" {
		limiter = repository.NewRedisRateLimiter(rdb, cfg.Gateway.RateLimit, cfg.Gateway.RateWindow)
	} else {
		limiter = repository.NewMemoryRateLimiter(cfg.Gateway.RateLimit, cfg.Gateway.RateWindow)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var taps []*tap.Tap
	if cfg.Mirror.RedisEnabled {
		taps = append(taps, tap.New("redis", repository.NewRedisStore(rdb), cfg.Mirror.Buffer, m, logger))
	}
	if cfg.Mirror.KafkaEnabled {
		creator := repository.NewTopicCreator(logger, &repository.RealKafkaDialer{Dialer: kafka.DefaultDialer})
		if err := creator.Create(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, 4); err != nil {
			logger.Warn("Kafka topic not confirmed", zap.Error(err))
		}
		writer := repository.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		taps = append(taps, tap.New("kafka", repository.NewKafkaPublisher(writer), cfg.Mirror.Buffer, m, logger))
	}
	for _, t := range taps {
		off := marketHub.OnTick(t.Listen)
		defer off()
		go t.Run(ctx)
	}

	guard := admission.NewGuard(admission.Config{
		APIKey:         cfg.Gateway.APIKey,
		AllowIPs:       cfg.Gateway.AllowIPs,
		TrustedProxies: cfg.Gateway.TrustedProxies,
	}, limiter, m, logger.Named("admission"))

	srv := server.New(server.Config{
		DefaultSymbols: cfg.Gateway.DefaultSymbols,
		MaxSymbols:     cfg.Hub.MaxSymbols,
		AllowedOrigins: cfg.Gateway.AllowedOrigins,
		Channel: gateway.Options{
			Heartbeat:  cfg.Gateway.Heartbeat,
			SendBuffer: cfg.Gateway.SendBuffer,
		},
	}, marketHub, guard, m, logger)

	marketHub.Start()

	httpServer := &http.Server{Addr: cfg.App.Port, Handler: srv.Router()}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	// close open channels first so Shutdown is not held up by streams
	srv.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}

	marketHub.Stop()
	cancel()
	for _, t := range taps {
		<-t.Done()
	}
	logger.Info("Shutdown Complete")
}
