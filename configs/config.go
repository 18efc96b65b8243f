package configs

import (
	"fmt"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"log"
	"os"
)

type Config struct {
	ServerPort             string `envconfig:"SERVER_PORT" default:"8080"`
	WorkerHealthPort       string `envconfig:"WORKER_HEALTH_PORT" default:"8081"`
	ServerTimeOutInSeconds int64  `envconfig:"SERVER_TIME_OUT_IN_SECONDS" default:"5"`
	EncryptionKey          string `envconfig:"ENCRYPTION_KEY"`
	Database               DatabaseConfig
	RabbitMQ               RabbitMQConfig
	RedisConfig            RedisConfig
	Webhook                WebhookConfig
	Worker                 WorkerConfig
	Providers              ProvidersConfig
}

type DatabaseConfig struct {
	Username     string `envconfig:"DB_USERNAME"`
	Password     string `envconfig:"DB_PASSWORD"`
	Host         string `envconfig:"DB_HOST"`
	Port         string `envconfig:"DB_PORT"`
	Database     string `envconfig:"DB_DATABASE"`
	SSLMode      string `envconfig:"DB_SSL_MODE" default:"require"`
	PoolMaxConns int    `envconfig:"DB_POOL_MAX_CONNS" default:"4"`
}

type RabbitMQConfig struct {
	Username            string `envconfig:"RABBIT_USERNAME"`
	Password            string `envconfig:"RABBIT_PASSWORD"`
	Host                string `envconfig:"RABBIT_HOST"`
	Port                string `envconfig:"RABBIT_PORT"`
	TasksQueueName      string `envconfig:"TASKS_QUEUE_NAME" default:"notification_tasks"`
	TasksRetryQueueName string `envconfig:"TASKS_RETRY_QUEUE_NAME" default:"notification_tasks_retry"`
}

type RedisConfig struct {
	Username string `envconfig:"REDIS_USERNAME"`
	Password string `envconfig:"REDIS_PASSWORD"`
	Host     string `envconfig:"REDIS_HOST"`
	Port     string `envconfig:"REDIS_PORT"`
	DBIndex  int32  `envconfig:"REDIS_DB_INDEX"`
}

type WebhookConfig struct {
	// Secret may carry the ENC: prefix, it is resolved through the secret resolver
	Secret               string `envconfig:"WEBHOOK_SECRET"`
	DedupWindowInSeconds int64  `envconfig:"DEDUP_WINDOW_IN_SECONDS" default:"600"`
}

type WorkerConfig struct {
	MinConcurrency           int   `envconfig:"WORKER_MIN_CONCURRENCY" default:"2"`
	MaxConcurrency           int   `envconfig:"WORKER_MAX_CONCURRENCY" default:"20"`
	ScaleIntervalInSeconds   int64 `envconfig:"WORKER_SCALE_INTERVAL_IN_SECONDS" default:"10"`
	MaxAttempts              int   `envconfig:"TASK_MAX_ATTEMPTS" default:"3"`
	BackoffBaseInSeconds     int64 `envconfig:"BACKOFF_BASE_IN_SECONDS" default:"60"`
	BackoffCapInSeconds      int64 `envconfig:"BACKOFF_CAP_IN_SECONDS" default:"900"`
	SendTimeOutInSeconds     int64 `envconfig:"SEND_TIME_OUT_IN_SECONDS" default:"30"`
	LookupTimeOutInSeconds   int64 `envconfig:"LOOKUP_TIME_OUT_IN_SECONDS" default:"10"`
	ResultRetentionInSeconds int64 `envconfig:"RESULT_RETENTION_IN_SECONDS" default:"7200"`
}

type ProvidersConfig struct {
	// All credential values may carry the ENC: prefix
	SendGridAPIKey    string `envconfig:"SENDGRID_API_KEY"`
	SendGridFromEmail string `envconfig:"SENDGRID_FROM_EMAIL"`
	TwilioAccountSID  string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioPhoneNumber string `envconfig:"TWILIO_PHONE_NUMBER"`
}

// ToMigrationUri returns a string specifically for the migration package with the right prefix
func (d DatabaseConfig) ToMigrationUri() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
		d.SSLMode,
	)
}

// ToDbConnectionUri returns a connection URI to be used with the pgx package
func (d DatabaseConfig) ToDbConnectionUri() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%d",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
		d.SSLMode,
		d.PoolMaxConns,
	)
}

// ToRabbitConnectionUri returns a connection URI to be used with the rabbitmq/amqp091-go package
func (d RabbitMQConfig) ToRabbitConnectionUri() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
	)
}

// ToRedisConnectionUri returns a connection URI to be used with the redis/go-redis/v9 package
func (d RedisConfig) ToRedisConnectionUri() string {
	return fmt.Sprintf("redis://%s:%s@%s:%s/%d",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.DBIndex,
	)
}

// SecretValues returns the configuration entries which are allowed to carry the
// ENC: prefix, keyed by their environment variable name. The secret resolver is
// built on top of this mapping once at process start.
func (c *Config) SecretValues() map[string]string {
	return map[string]string{
		"WEBHOOK_SECRET":     c.Webhook.Secret,
		"SENDGRID_API_KEY":   c.Providers.SendGridAPIKey,
		"TWILIO_ACCOUNT_SID": c.Providers.TwilioAccountSID,
		"TWILIO_AUTH_TOKEN":  c.Providers.TwilioAuthToken,
	}
}

func InitConfig() *Config {
	err := godotenv.Load()

	if err != nil && !os.IsNotExist(err) {
		log.Fatalf("Unable to load .env %v", err)
	}

	var cfg Config
	err = envconfig.Process("", &cfg)
	if err != nil {
		fmt.Print("Cannot load env")
	}

	return &cfg
}
