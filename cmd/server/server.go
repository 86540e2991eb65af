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

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"threadline/internal/config"
	"threadline/internal/domain/assistant"
	"threadline/internal/domain/ratelimit"
	"threadline/internal/domain/supervisor"
	"threadline/internal/infrastructure/crontab"
	"threadline/internal/infrastructure/logger"
	"threadline/internal/infrastructure/observability"
	"threadline/internal/interfaces/httpserver"

	_ "net/http/pprof"
)

type Application struct {
	httpServer *httpserver.HTTPServer
	crontab    *crontab.Crontab
	pool       *assistant.Pool
	supervisor *supervisor.Supervisor
	limits     *ratelimit.Engine
	config     *config.Config
	log        zerolog.Logger
}

// Start runs the HTTP server, the maintenance crontab and the generation pool until ctx ends
// or one of them fails.
func (application *Application) Start(ctx context.Context) error {
	log := application.log

	if err := application.limits.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap rate limits: %w", err)
	}
	if err := application.pool.Start(ctx); err != nil {
		return fmt.Errorf("start generation pool: %w", err)
	}
	defer func() {
		if n := application.supervisor.CancelAll(); n > 0 {
			log.Info().Int("streams", n).Msg("cancelled active assistant streams")
		}
		application.pool.Stop()
	}()

	eg, ctx := errgroup.WithContext(ctx)
	if port := application.config.PprofPort; port > 0 {
		pprofServer := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", port), Handler: http.DefaultServeMux, ReadHeaderTimeout: 5 * time.Second}
		eg.Go(func() error {
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			return pprofServer.Close()
		})
	}
	eg.Go(func() error {
		return application.crontab.Run(ctx)
	})
	eg.Go(func() error {
		return application.httpServer.Run(ctx)
	})
	return eg.Wait()
}

func main() {
	loadEnvFiles()
	log := logger.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := CreateApplication()
	if err != nil {
		log.Error().Err(err).Msg("create application")
		os.Exit(1)
	}
	log = application.log

	otelShutdown, err := observability.Setup(ctx, application.config, log)
	if err != nil {
		log.Error().Err(err).Msg("initialize observability")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("shutdown telemetry")
			}
		}()
	}

	log.Info().Str("version", config.Version).Msg("starting threadline")
	if err := application.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("application stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
