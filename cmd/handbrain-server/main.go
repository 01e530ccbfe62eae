package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/handbrain-chess/internal/builder"
	appcfg "github.com/park285/handbrain-chess/internal/config"
	"github.com/park285/handbrain-chess/internal/httpapi"
	"github.com/park285/handbrain-chess/internal/obslog"
	"github.com/park285/handbrain-chess/internal/telemetry"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal("hnb_telemetry_init", zap.Error(err))
	}

	deps, err := builder.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("hnb_deps_init", zap.Error(err))
	}

	api := httpapi.New(deps.Engine, deps.Players, deps.Messages)
	srv := &fasthttp.Server{
		Handler:      api.Handler(),
		Name:         cfg.ServiceName,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("hnb_http_listen", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreBackend))
		return srv.ListenAndServe(cfg.HTTPAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("hnb_http_shutdown")
		return srv.ShutdownWithContext(context.Background())
	})
	if deps.Relay != nil {
		g.Go(func() error { return deps.Relay.Run(gctx) })
	}
	if cfg.EventsAddr != "" {
		feed := &http.Server{
			Addr:              cfg.EventsAddr,
			Handler:           httpapi.NewFeed(deps.Events).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("hnb_feed_listen", zap.String("addr", cfg.EventsAddr))
			if err := feed.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return feed.Shutdown(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("hnb_server_exit", zap.Error(err))
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn("hnb_telemetry_shutdown", zap.Error(err))
	}
	if err := deps.Close(); err != nil {
		logger.Warn("hnb_deps_close", zap.Error(err))
	}
	if ctx.Err() == nil {
		// the server stopped without a signal
		_ = logger.Sync()
		os.Exit(1)
	}
}
