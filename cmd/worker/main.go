package main

import (
	"context"
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/sf7293/job-notifier/configs"
	"github.com/sf7293/job-notifier/internal/dispatch"
	"github.com/sf7293/job-notifier/internal/domain"
	"github.com/sf7293/job-notifier/internal/postgres"
	"github.com/sf7293/job-notifier/internal/rabbitmq"
	"github.com/sf7293/job-notifier/internal/redis"
	"github.com/sf7293/job-notifier/internal/secrets"
	"github.com/sf7293/job-notifier/internal/worker"
	"github.com/sf7293/job-notifier/pkg/email"
	"github.com/sf7293/job-notifier/pkg/sms"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var postgresIsReady, rabbitIsReady, redisIsReady bool

func main() {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(h))

	cfg := configs.InitConfig()
	args := os.Args
	slog.Info("Running notification worker command", "args", args)

	// workerName is only needed to be unique per worker process, it becomes
	// part of the broker consumer tag
	workerName := "worker-1"
	if len(args) >= 2 {
		workerName = args[1]
	}

	resolver, err := secrets.NewResolver(cfg.EncryptionKey, cfg.SecretValues())
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rabbitClient, err := rabbitmq.NewRabbitMQClient(ctx, cfg.RabbitMQ.ToRabbitConnectionUri(), cfg.RabbitMQ.TasksQueueName, cfg.RabbitMQ.TasksRetryQueueName, cfg.Worker.MaxConcurrency)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		err = rabbitClient.Close()
		if err != nil {
			slog.Error("An error occurred while closing RabbitMQ connection", "error", err.Error())
		}
	}()
	rabbitIsReady = true
	slog.Info("RabbitMQ connection has been initialized successfully")

	redisClient, err := redis.NewClient(ctx, cfg.RedisConfig.ToRedisConnectionUri(), time.Duration(cfg.Worker.ResultRetentionInSeconds)*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		err = redisClient.Close()
		if err != nil {
			slog.Error("An error occurred while closing Redis connection", "error", err.Error())
		}
	}()
	redisIsReady = true
	slog.Info("Redis connection has been initialized successfully")

	storage, err := postgres.NewStorage(ctx, cfg.Database.ToDbConnectionUri())
	if err != nil {
		log.Fatal(err)
	}
	postgresIsReady = true
	slog.Info("Postgres connection has been initialized successfully")

	emailSender := email.NewSender(
		resolver.Resolve("SENDGRID_API_KEY"),
		cfg.Providers.SendGridFromEmail,
	)
	smsSender := sms.NewSender(
		resolver.Resolve("TWILIO_ACCOUNT_SID"),
		resolver.Resolve("TWILIO_AUTH_TOKEN"),
		cfg.Providers.TwilioPhoneNumber,
	)

	dispatcher := dispatch.NewDispatcher(
		storage,
		[]domain.ChannelSender{emailSender, smsSender},
		time.Duration(cfg.Worker.LookupTimeOutInSeconds)*time.Second,
		time.Duration(cfg.Worker.SendTimeOutInSeconds)*time.Second,
	)

	executor := worker.NewExecutor(
		dispatcher,
		redisClient,
		time.Duration(cfg.Worker.BackoffBaseInSeconds)*time.Second,
		time.Duration(cfg.Worker.BackoffCapInSeconds)*time.Second,
	)

	pool := worker.NewPool(
		rabbitClient,
		executor,
		"notification-consumer:"+workerName,
		cfg.Worker.MinConcurrency,
		cfg.Worker.MaxConcurrency,
		time.Duration(cfg.Worker.ScaleIntervalInSeconds)*time.Second,
	)

	if err = pool.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker pool: %v", err)
	}
	slog.Info("Worker pool is running",
		"worker_name", workerName,
		"min_concurrency", cfg.Worker.MinConcurrency,
		"max_concurrency", cfg.Worker.MaxConcurrency)

	// Running HTTP Server in order to have health, liveness and readiness APIs
	go setUpHealthCheckerAPIs(ctx, cfg, storage, rabbitClient, redisClient, pool)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("Worker is running. To exit press CTRL+C", "worker_name", workerName)
	<-sigChan
	slog.Info("Worker is shutting down...", "worker_name", workerName)
	cancel()
	pool.Wait()
}

func setUpHealthCheckerAPIs(ctx context.Context, cfg *configs.Config, storage domain.CandidateStore, queue domain.TaskQueue, redisClient *redis.Client, pool *worker.Pool) {
	r := gin.Default()
	r.GET("/health", func(c *gin.Context) {
		depth, err := queue.Depth()
		if err != nil {
			slog.Error("Error occurred while reading queue depth for health API", "error", err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not healthy"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":         "healthy",
			"queue_depth":    depth,
			"active_workers": pool.ActiveWorkers(),
		})
	})
	r.GET("/readiness", func(c *gin.Context) {
		if postgresIsReady && rabbitIsReady && redisIsReady {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
		} else {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		}
	})
	r.GET("/liveness", func(c *gin.Context) {
		err := storage.Ping(ctx)
		if err != nil {
			slog.Error("Postgresql seem not to be pingable in liveness API", "error", err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not healthy"})
			return
		}

		if !queue.IsHealthy() {
			slog.Error("Rabbit is not healthy")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not healthy"})
			return
		}

		err = redisClient.Ping(ctx)
		if err != nil {
			slog.Error("Redis seem not to be pingable in liveness API", "error", err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not healthy"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "up"})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.WorkerHealthPort,
		Handler: r,
	}

	go func() {
		log.Printf("Starting worker health server on port %s\n", cfg.WorkerHealthPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("listen: %s\n", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("Worker health server forced to shutdown:", err)
	}
}
