package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mathcanvas/internal/browser"
	"mathcanvas/internal/config"
	"mathcanvas/internal/logging"
	"mathcanvas/internal/server"
	"mathcanvas/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API backed by a headless browser",
	RunE:  runServe,
}

// browserConfigFrom maps the file config onto the page host config.
func browserConfigFrom(cfg config.BrowserConfig) browser.Config {
	return browser.Config{
		AppURL:              cfg.AppURL,
		DebuggerURL:         cfg.DebuggerURL,
		Launch:              cfg.Launch,
		Headless:            cfg.Headless,
		ViewportWidth:       cfg.ViewportWidth,
		ViewportHeight:      cfg.ViewportHeight,
		NavigationTimeoutMs: cfg.NavigationTimeoutMs,
		AttemptTimeoutMs:    cfg.AttemptTimeoutMs,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	host := browser.NewHost(browserConfigFrom(cfg.Browser))
	if err := host.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser host: %w", err)
	}
	defer func() {
		if err := host.Shutdown(context.Background()); err != nil {
			logging.BrowserWarn("browser shutdown: %v", err)
		}
	}()
	logger.Info("browser host started", zap.String("control_url", host.ControlURL()))

	reports, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open report store: %w", err)
	}
	defer reports.Close()

	api := server.New(host, reports, cfg.Pipeline, logger)
	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP API listening", zap.String("addr", cfg.Server.Addr))
		logging.Server("listening on %s", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace())
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
