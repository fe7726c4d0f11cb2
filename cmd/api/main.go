package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimasrn/studio-gateway/internal/app"
	"github.com/nimasrn/studio-gateway/internal/config"
	"github.com/nimasrn/studio-gateway/internal/handlers"
	"github.com/nimasrn/studio-gateway/internal/processor"
	"github.com/nimasrn/studio-gateway/internal/queue"
	"github.com/nimasrn/studio-gateway/internal/services"
	"github.com/nimasrn/studio-gateway/internal/wise"
	xhttp "github.com/nimasrn/studio-gateway/pkg/http"
	"github.com/nimasrn/studio-gateway/pkg/logger"
	"github.com/nimasrn/studio-gateway/pkg/prom"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := config.Load(app.EnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting api", "version", version, "commit", commit, "date", date)

	if cfg.WiseWebhookSecret == "" {
		logger.Warn("WISE_WEBHOOK_SECRET is empty, every webhook will be rejected")
	}

	stack, err := app.Build(cfg)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		return
	}
	defer stack.Close()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	go prom.ListenAndServer(cfg.PromListenAddr, "/metrics")

	// effects go to the processor; if the queue is down they run here
	var sink services.EffectSink = services.NewInlineSink(stack.Effects)
	q, err := queue.NewQueue(stack.Redis, app.EffectQueue(cfg))
	if err != nil {
		logger.Error("effect queue unavailable, executing effects inline", "error", err)
	} else {
		sink = services.NewFallbackSink(processor.NewQueueSink(q), sink)
	}

	reconciler := services.NewBookingReconciler(stack.DB, stack.Repos.Transactions, stack.Repos.Bookings, sink)
	healthService := services.NewHealthService(map[string]services.Pinger{
		"postgres": stack.DB,
		"redis":    stack.Redis,
	})

	webhookHandler := handlers.NewWebhookHandler(wise.NewVerifier(cfg.WiseWebhookSecret), reconciler, cfg.WiseSignatureHeader)
	healthHandler := handlers.NewHealthHandler(healthService)

	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Use(xhttp.TimeoutMiddleware(time.Duration(cfg.HttpRequestTimeout) * time.Second))
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	g := s.Router.Group("/api")
	handlers.RegisterWebhookRoutes(g, webhookHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := s.ListenAndServe(cfg.HttpListenAddr); err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	s.Shutdown()
}
