// Command fundd serves the fund's HTTP API: the gasless swap relayer,
// settlement order status, campaign progress and the exchange rate.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/internal/config"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/internal/logger"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/internal/metrics"
	fundgin "github.com/mmoncada1/Marina-Pickleball-Community-Fund/pkg/gin"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configDir := flag.String("config", "", "directory containing fundd.yaml (default ./config or .)")
	flag.Parse()

	var paths []string
	if *configDir != "" {
		paths = append(paths, *configDir)
	}
	v := config.New(paths...)
	c, err := config.Load(v)
	if err != nil {
		// logger is not configured yet
		os.Stderr.WriteString("fundd: " + err.Error() + "\n")
		os.Exit(1)
	}

	level := logger.ParseLevel(c.Log.Level)
	log := logger.NewWithLevel(config.Service, level, os.Stdout)
	defer log.Sync() //nolint:errcheck

	config.Watch(v, func(next *config.Config) {
		level.SetLevel(logger.ParseLevel(next.Log.Level).Level())
		log.Info("config reloaded", zap.String("level", next.Log.Level))
	}, func(err error) {
		log.Warn("ignoring invalid config change", zap.Error(err))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, c, log); err != nil {
		log.Error("fundd stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, c *config.Config, log *zap.Logger) error {
	s, err := buildStack(ctx, c, log)
	if err != nil {
		return err
	}

	var background fund.Group
	for _, p := range s.pollers {
		background.Add(p.Start(ctx))
	}
	defer background.StopAll()

	if c.HTTP.Metrics {
		metrics.MustRegister()
	}
	router := fundgin.NewRouter(ctx, s.services, routerOptions(c, log)...)
	server := fundgin.NewServer(c.HTTP.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", c.HTTP.Addr), zap.Int64("chainId", c.Chain.ID))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
