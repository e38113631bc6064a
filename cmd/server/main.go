package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/Verdenroz/champion-recap/internal/aggregator"
	"github.com/Verdenroz/champion-recap/internal/config"
	"github.com/Verdenroz/champion-recap/internal/constants"
	fxmodules "github.com/Verdenroz/champion-recap/internal/fx"
	"github.com/Verdenroz/champion-recap/internal/middleware"
	"github.com/Verdenroz/champion-recap/internal/processor"
	"github.com/Verdenroz/champion-recap/internal/repository"
	"github.com/Verdenroz/champion-recap/internal/server"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	recapServer *server.RecapServer,
	workers *processor.Workers,
	sweeper *aggregator.Sweeper,
	progress *repository.ProgressRepository,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	requestIDMiddleware := middleware.RequestID(logger)
	handler := requestIDMiddleware(c.Handler(recapServer.Routes()))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: handler,
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// runs that were live before a restart lost their queued work
			if _, err := progress.FailInterrupted(ctx); err != nil {
				return err
			}

			workers.Start()
			go sweeper.Run(sweepCtx)

			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}

			sweepCancel()
			workers.Stop()

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}

			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
