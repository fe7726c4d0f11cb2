package main

import (
	"context"
	"os"
	"time"

	"github.com/nimasrn/studio-gateway/internal/app"
	"github.com/nimasrn/studio-gateway/internal/config"
	"github.com/nimasrn/studio-gateway/pkg/logger"
	"github.com/nimasrn/studio-gateway/pkg/pg"
)

// usage:
//
//	cli --env=.env [--dir=./migrations] [--status]
//	cli --env=.env --task=scheduled-notifications|class-reminders|event-reminders
func main() {
	err := config.Load(envPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if task := app.ArgValue("task"); task != "" {
		if err := runTask(task); err != nil {
			logger.Error("task failed", "task", task, "error", err)
			os.Exit(1)
		}
		return
	}

	dir := migrationPath()
	if hasFlag("--status") {
		err = pg.MigrationStatus(app.WriteDB(config.Get()), dir)
	} else {
		err = pg.Migrate(app.WriteDB(config.Get()), dir)
	}
	if err != nil {
		logger.Error("migration: error running migrations", "error", err)
		os.Exit(1)
	}
}

func runTask(task string) error {
	stack, err := app.Build(config.Get())
	if err != nil {
		return err
	}
	defer stack.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	switch task {
	case "scheduled-notifications":
		res, err := stack.Dispatcher.ProcessScheduled(ctx)
		logger.Info("scheduled notifications",
			"processed", res.Processed,
			"delivered", res.Delivered,
			"skipped", res.Skipped,
			"locked", res.Locked,
			"failed", res.Failed)
		return err
	case "class-reminders":
		n, err := stack.Reminders.SendClassReminders(ctx)
		logger.Info("class reminders sent", "classes", n)
		return err
	case "event-reminders":
		n, err := stack.Reminders.SendEventReminders(ctx)
		logger.Info("event reminders sent", "events", n)
		return err
	default:
		logger.Error("unknown task", "task", task)
		os.Exit(2)
	}
	return nil
}

func hasFlag(flag string) bool {
	for _, v := range os.Args[1:] {
		if v == flag {
			return true
		}
	}
	return false
}

func envPath() string {
	if p := app.EnvPath(); p != "" {
		return p
	}
	if _, err := os.Stat(".env"); err != nil {
		return ""
	}
	return ".env"
}

func migrationPath() string {
	if p := app.ArgValue("dir"); p != "" {
		return p
	}
	return "./migrations"
}
