package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/basis-hub/cmd/simvenue/internal/generator"
	"github.com/shubham-shewale/basis-hub/pkg/config"
)

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

	rnd := generator.RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
	gen := generator.NewQuoteGenerator(cfg.Sim.BasePx, rnd)
	handler := generator.NewServer(logger, gen, generator.RealClock{}, cfg.Sim.Interval)

	srv := &http.Server{Addr: cfg.Sim.Port, Handler: handler}

	go func() {
		logger.Info("Simulated venue started", zap.String("port", cfg.Sim.Port), zap.Duration("interval", cfg.Sim.Interval))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	// hijacked venue connections are not tracked by Shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	logger.Info("Shutdown Complete")
}
