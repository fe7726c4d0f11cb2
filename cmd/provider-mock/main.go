package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type mockConfig struct {
	Port        string        `env:"PORT,default=8081"`
	SuccessRate float64       `env:"SUCCESS_RATE,default=1"`
	MinDelay    time.Duration `env:"MIN_DELAY,default=20ms"`
	MaxDelay    time.Duration `env:"MAX_DELAY,default=200ms"`
	Debug       bool          `env:"MOCK_DEBUG,default=false"`
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var cfg mockConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid mock provider config")
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("port", cfg.Port).
		Float64("success_rate", cfg.SuccessRate).
		Dur("min_delay", cfg.MinDelay).
		Dur("max_delay", cfg.MaxDelay).
		Msg("mock email and push provider")

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           SetupRouter(NewMockProvider(cfg.SuccessRate, cfg.MinDelay, cfg.MaxDelay)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       time.Minute,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}
