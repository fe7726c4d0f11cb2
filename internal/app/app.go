// Package app wires the gateway's infrastructure and services for the
// binaries under cmd.
package app

import (
	"os"
	"strings"

	"github.com/nimasrn/studio-gateway/internal/config"
	"github.com/nimasrn/studio-gateway/internal/email"
	"github.com/nimasrn/studio-gateway/internal/processor"
	"github.com/nimasrn/studio-gateway/internal/push"
	"github.com/nimasrn/studio-gateway/internal/queue"
	"github.com/nimasrn/studio-gateway/internal/repository"
	"github.com/nimasrn/studio-gateway/internal/services"
	"github.com/nimasrn/studio-gateway/pkg/logger"
	"github.com/nimasrn/studio-gateway/pkg/mq"
	"github.com/nimasrn/studio-gateway/pkg/pg"
	"github.com/nimasrn/studio-gateway/pkg/redis"
	"github.com/pkg/errors"
)

type Repositories struct {
	Users         *repository.UserRepository
	Catalog       *repository.CatalogRepository
	Bookings      *repository.BookingRepository
	Transactions  *repository.TransactionRepository
	Notifications *repository.NotificationRepository
	Subscriptions *repository.PushSubscriptionRepository
	Preferences   *repository.PreferenceRepository
}

func NewRepositories(db *pg.DB) Repositories {
	return Repositories{
		Users:         repository.NewUserRepository(db),
		Catalog:       repository.NewCatalogRepository(db),
		Bookings:      repository.NewBookingRepository(db),
		Transactions:  repository.NewTransactionRepository(db),
		Notifications: repository.NewNotificationRepository(db),
		Subscriptions: repository.NewPushSubscriptionRepository(db),
		Preferences:   repository.NewPreferenceRepository(db),
	}
}

// Stack is everything a binary needs to reconcile payments and notify users.
type Stack struct {
	DB          *pg.DB
	Redis       redis.RedisAdapter
	Repos       Repositories
	Idempotency *processor.IdempotencyService
	Dispatcher  *services.NotificationDispatcher
	Triggers    *services.NotificationTriggers
	Executor    *services.EffectExecutor
	Effects     *processor.EffectProcessor
	Reminders   *services.ReminderScheduler

	closers []func()
}

func WriteDB(cfg *config.Config) pg.Config {
	return pg.Config{
		User:     cfg.PostgresWriteUser,
		Host:     cfg.PostgresWriteHost,
		Port:     cfg.PostgresWritePort,
		Password: cfg.PostgresWritePassword,
		Database: cfg.PostgresWriteDatabase,
	}
}

func ReadDB(cfg *config.Config) pg.Config {
	return pg.Config{
		User:     cfg.PostgresReadUser,
		Host:     cfg.PostgresReadHost,
		Port:     cfg.PostgresReadPort,
		Password: cfg.PostgresReadPassword,
		Database: cfg.PostgresReadDatabase,
	}
}

func EffectQueue(cfg *config.Config) queue.QueueConfig {
	return queue.QueueConfig{
		Name:              cfg.QueueName,
		ConsumerGroup:     cfg.QueueConsumerGroup,
		ConsumerName:      cfg.QueueConsumerName,
		MaxRetries:        cfg.QueueMaxRetries,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
		PollInterval:      cfg.QueuePollInterval,
		BatchSize:         cfg.QueueBatchSize,
		MaxLen:            cfg.QueueMaxLen,
		EnableDLQ:         cfg.QueueEnableDLQ,
	}
}

func Connect(cfg *config.Config) (*pg.DB, redis.RedisAdapter, error) {
	db, err := pg.CreateReadWrite(ReadDB(cfg), WriteDB(cfg), cfg.AppEnv == "dev")
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed connecting to pg")
	}

	adapter, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{cfg.RedisAddr},
		ClientName: cfg.AppName,
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed connecting to redis")
	}
	return db, adapter, nil
}

// Build connects to Postgres and Redis and assembles the services.
func Build(cfg *config.Config) (*Stack, error) {
	db, adapter, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	s := &Stack{DB: db, Redis: adapter, Repos: NewRepositories(db)}

	mailer, closeMailer, err := email.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, closeMailer)

	renderer, err := email.NewRenderer()
	if err != nil {
		return nil, errors.Wrap(err, "email templates")
	}

	var publisher services.EventPublisher
	if cfg.RabbitUrl != "" {
		p, err := mq.NewPublisher(cfg.RabbitUrl, cfg.RabbitExchange)
		if err != nil {
			return nil, errors.Wrap(err, "failed connecting to rabbitmq")
		}
		publisher = p
		s.closers = append(s.closers, func() { _ = p.Close() })
	} else {
		logger.Warn("RABBIT_URL not set, booking status events are not published")
	}

	s.Idempotency = processor.NewIdempotencyService(adapter, processor.DefaultIdempotencyConfig())

	pusher := push.NewWebPushSender(push.WebPushConfig{
		VapidPublicKey:  cfg.VapidPublicKey,
		VapidPrivateKey: cfg.VapidPrivateKey,
		Subject:         cfg.VapidSubject,
		DefaultTTL:      cfg.PushDefaultTTL,
	})
	s.Dispatcher = services.NewNotificationDispatcher(pusher,
		s.Repos.Subscriptions, s.Repos.Preferences, s.Repos.Notifications,
		services.WithLocation(cfg.Location()),
		services.WithLocker(s.Idempotency),
		services.WithDefaultTTL(cfg.PushDefaultTTL),
		services.WithScheduledBatch(cfg.SchedulerBatch),
	)
	s.Triggers = services.NewNotificationTriggers(s.Dispatcher, s.Repos.Notifications,
		s.Repos.Bookings, s.Repos.Catalog, s.Repos.Users, mailer, renderer,
		services.TriggerConfig{BaseURL: cfg.AppBaseUrl, Location: cfg.Location()})
	s.Executor = services.NewEffectExecutor(s.Triggers, publisher)
	s.Effects = processor.NewEffectProcessor(s.Executor, s.Idempotency)
	s.Reminders = services.NewReminderScheduler(s.Repos.Catalog, s.Triggers, s.Idempotency, cfg.ReminderInterval)
	return s, nil
}

func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// ArgValue returns the value of a --name=value command line flag.
func ArgValue(name string) string {
	prefix := "--" + name + "="
	for _, v := range os.Args[1:] {
		if strings.HasPrefix(v, prefix) {
			return strings.TrimPrefix(v, prefix)
		}
	}
	return ""
}

// EnvPath returns the --env file when it exists.
func EnvPath() string {
	p := ArgValue("env")
	if p == "" {
		return ""
	}
	if _, err := os.Stat(p); err != nil {
		logger.Error("failed to open the passed env file", "path", p, "error", err)
		return ""
	}
	return p
}
