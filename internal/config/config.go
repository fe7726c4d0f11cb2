package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/studio-gateway/pkg/logger"
	"github.com/pkg/errors"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Config holds every configuration value of the gateway. Only this struct
// may be used to read configuration; no direct env access elsewhere.
type Config struct {
	AppEnv      string `env:"APP_ENV,default=dev"`
	AppName     string `env:"APP_NAME,default=studio_gateway"`
	AppDebug    bool   `env:"APP_DEBUG,default=false"`
	AppBaseUrl  string `env:"APP_BASE_URL,default=http://localhost:3000"`
	AppTimezone string `env:"APP_TIMEZONE,default=UTC"`

	HttpListenAddr     string `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpRequestTimeout int    `env:"HTTP_REQUEST_TIMEOUT_SECONDS,default=10"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT,default=5432"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT,default=5432"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=studio:"`

	PromNamespace  string `env:"PROM_NAMESPACE,default=studio"`
	PromListenAddr string `env:"PROM_LISTEN_ADDR,default=:9100"`

	WiseWebhookSecret   string `env:"WISE_WEBHOOK_SECRET"`
	WiseSignatureHeader string `env:"WISE_SIGNATURE_HEADER,default=X-Signature-SHA256"`

	VapidPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VapidPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VapidSubject    string `env:"VAPID_SUBJECT,default=mailto:admin@localhost"`
	PushDefaultTTL  int    `env:"PUSH_DEFAULT_TTL,default=86400"`

	EmailDriver          string `env:"EMAIL_DRIVER,default=console"`
	EmailFrom            string `env:"EMAIL_FROM,default=Studio <no-reply@localhost>"`
	SmtpHost             string `env:"SMTP_HOST"`
	SmtpPort             int    `env:"SMTP_PORT,default=587"`
	SmtpUser             string `env:"SMTP_USER"`
	SmtpPassword         string `env:"SMTP_PASSWORD"`
	EmailApiPrimaryUrl   string `env:"EMAIL_API_PRIMARY_URL"`
	EmailApiSecondaryUrl string `env:"EMAIL_API_SECONDARY_URL"`
	EmailApiKey          string `env:"EMAIL_API_KEY"`

	RabbitUrl      string `env:"RABBIT_URL"`
	RabbitExchange string `env:"RABBIT_EXCHANGE,default=studio.events"`

	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL,default=1m"`
	SchedulerBatch    int           `env:"SCHEDULER_BATCH,default=200"`
	ReminderInterval  time.Duration `env:"REMINDER_INTERVAL,default=5m"`

	QueueName              string        `env:"EFFECT_QUEUE_NAME,default=studio:effects"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP,default=effects"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME,default=processor"`
	QueueConsumers         int           `env:"QUEUE_CONSUMERS,default=4"`
	QueueWorkers           int           `env:"QUEUE_WORKERS,default=16"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES,default=5"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT,default=30s"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL,default=500ms"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE,default=10"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN,default=100000"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ,default=true"`
}

// Location returns the zone quiet hours are evaluated in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		logger.Warn("unknown APP_TIMEZONE, falling back to UTC", "timezone", c.AppTimezone, "error", err)
		return time.UTC
	}
	return loc
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	if err = c.validate(); err != nil {
		return err
	}

	config = c
	return nil
}

func (c *Config) validate() error {
	switch c.EmailDriver {
	case "console", "smtp", "api":
	default:
		return errors.Errorf("unsupported EMAIL_DRIVER %q", c.EmailDriver)
	}
	if c.EmailDriver == "smtp" && c.SmtpHost == "" {
		return errors.New("SMTP_HOST is required when EMAIL_DRIVER=smtp")
	}
	if c.EmailDriver == "api" && c.EmailApiPrimaryUrl == "" {
		return errors.New("EMAIL_API_PRIMARY_URL is required when EMAIL_DRIVER=api")
	}
	if c.SchedulerInterval <= 0 {
		return errors.New("SCHEDULER_INTERVAL must be positive")
	}
	if c.ReminderInterval <= 0 {
		return errors.New("REMINDER_INTERVAL must be positive")
	}
	return nil
}

// Set installs c as the process configuration. Used by tests and tools
// that build configuration without the environment.
func Set(c *Config) {
	config = c
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}
