package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mcdev12/kenoboard/go/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if err := logging.Setup(config.loggingConfig()); err != nil {
		log.Fatal().Err(err).Msg("failed to setup logging")
	}

	// signal-aware context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config); err != nil {
		log.Fatal().Err(err).Msg("kenoboard exited")
	}
	log.Info().Msg("kenoboard shutdown complete")
}

func run(ctx context.Context, config *Config) error {
	services, err := setupServices(config)
	if err != nil {
		return err
	}
	defer services.Store.Close()

	log.Info().
		Str("stream_url", config.StreamURL).
		Int("max_retries", config.MaxRetries).
		Bool("display_enabled", config.DisplayEnabled).
		Bool("mirror_enabled", services.Mirror != nil).
		Msg("starting kenoboard")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		services.Stream.Start(gctx)
		return nil
	})

	if services.Display != nil {
		server := setupServer(config, services)

		g.Go(func() error {
			return services.Display.Start(gctx)
		})
		g.Go(func() error {
			log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("HTTP server shutdown failed: %w", err)
			}
			return nil
		})
	}

	if services.Mirror != nil {
		g.Go(func() error {
			return services.Mirror.Start(gctx)
		})
	}

	return g.Wait()
}
