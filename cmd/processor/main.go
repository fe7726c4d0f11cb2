package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimasrn/studio-gateway/internal/app"
	"github.com/nimasrn/studio-gateway/internal/config"
	"github.com/nimasrn/studio-gateway/internal/processor"
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
	logger.Info("starting processor", "version", version, "commit", commit, "date", date)

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

	service := processor.NewProcessorService(stack.Redis, processor.ServiceConfig{
		Queue:     app.EffectQueue(cfg),
		Consumers: cfg.QueueConsumers,
		Workers:   cfg.QueueWorkers,
	})
	service.RegisterProcessor(stack.Effects)

	service.Schedule(processor.Job{
		Name:  "scheduled-notifications",
		Every: cfg.SchedulerInterval,
		Run: func(ctx context.Context) error {
			_, err := stack.Dispatcher.ProcessScheduled(ctx)
			return err
		},
	})
	service.Schedule(processor.Job{
		Name:  "class-reminders",
		Every: cfg.ReminderInterval,
		Run: func(ctx context.Context) error {
			_, err := stack.Reminders.SendClassReminders(ctx)
			return err
		},
	})
	service.Schedule(processor.Job{
		Name:  "event-reminders",
		Every: cfg.ReminderInterval,
		Run: func(ctx context.Context) error {
			_, err := stack.Reminders.SendEventReminders(ctx)
			return err
		},
	})

	if err := service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	service.Stop()
}
