package main

import (
	"context"
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sf7293/job-notifier/configs"
	db2 "github.com/sf7293/job-notifier/db"
	"github.com/sf7293/job-notifier/internal/domain"
	"github.com/sf7293/job-notifier/internal/errval"
	"github.com/sf7293/job-notifier/internal/ingress"
	"github.com/sf7293/job-notifier/internal/rabbitmq"
	"github.com/sf7293/job-notifier/internal/redis"
	"github.com/sf7293/job-notifier/internal/secrets"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var rabbitIsReady, redisIsReady bool

func main() {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(h))

	cfg := configs.InitConfig()

	// Missing decryption key is the one fatal secret condition: starting
	// without it would leave every encrypted credential permanently unusable
	resolver, err := secrets.NewResolver(cfg.EncryptionKey, cfg.SecretValues())
	if err != nil {
		log.Fatal(err)
	}

	d, err := iofs.New(db2.Migrations, "migrations")
	if err != nil {
		log.Fatal(err)
		return
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, cfg.Database.ToMigrationUri())
	if err != nil {
		log.Fatal(err)
		return
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal(err)
		}
	}
	slog.Info("Migrations ran successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rabbitClient, err := rabbitmq.NewRabbitMQClient(ctx, cfg.RabbitMQ.ToRabbitConnectionUri(), cfg.RabbitMQ.TasksQueueName, cfg.RabbitMQ.TasksRetryQueueName, 0)
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
	slog.Info("RabbitMQ has been initialized successfully")

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

	ing := ingress.NewIngress(
		rabbitClient,
		redisClient,
		redisClient,
		resolver.Resolve("WEBHOOK_SECRET"),
		time.Duration(cfg.Webhook.DedupWindowInSeconds)*time.Second,
		cfg.Worker.MaxAttempts,
	)

	router := setupHTTPServer(ing, redisClient, rabbitClient)
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	// Initializing the server in a goroutine so that
	// it won't block the graceful shutdown handling below
	go func() {
		log.Printf("Starting server on port %s\n", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerTimeOutInSeconds)*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

func setupHTTPServer(ing *ingress.Ingress, statusStore domain.StatusStore, queue domain.TaskQueue) *gin.Engine {
	r := gin.Default()

	// Duplicate deliveries inside the dedup window return 409 rather than a
	// silent idempotent 202, so retrying senders can tell admission from replay
	r.POST("/webhook/job-match", func(c *gin.Context) {
		rawBody, err := c.GetRawData()
		if err != nil {
			slog.Error("error occurred while reading webhook body", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{})
			return
		}

		task, err := ing.Admit(c, rawBody, c.GetHeader("X-Webhook-Signature"))
		if err != nil {
			switch {
			case errors.Is(err, errval.ErrUnauthorized):
				c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			case errors.Is(err, errval.ErrInvalidPayload):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, errval.ErrDuplicate):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{})
			}
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID})
	})

	r.GET("/task/:id", func(c *gin.Context) {
		status, err := statusStore.GetTaskStatus(c, c.Param("id"))
		if err != nil {
			if errors.Is(err, errval.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{})
				return
			}

			c.JSON(http.StatusInternalServerError, gin.H{})
			return
		}

		c.JSON(http.StatusOK, status)
	})

	r.GET("/health", func(c *gin.Context) {
		depth, err := queue.Depth()
		if err != nil {
			slog.Error("Error occurred while reading queue depth for health API", "error", err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not healthy"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "healthy", "queue_depth": depth})
	})

	r.GET("/readiness", func(c *gin.Context) {
		if rabbitIsReady && redisIsReady {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
		} else {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		}
	})
	r.GET("/liveness", func(c *gin.Context) {
		err := statusStore.Ping(c)
		if err != nil {
			slog.Error("Redis seem not to be pingable in liveness API", "error", err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not healthy"})
			return
		}

		if !queue.IsHealthy() {
			slog.Error("Rabbit is not healthy")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not healthy"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "up"})
	})

	return r
}
