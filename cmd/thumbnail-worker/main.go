// Package main runs the RabbitMQ thumbnail worker.
//
// The worker consumes invocation records from RABBITMQ_QUEUE, runs each one
// against S3, and publishes a status message to the status exchange. It runs
// until SIGINT or SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/image-thumbnailer/internal/config"
	"github.com/fpang/image-thumbnailer/internal/lambdaboot"
	"github.com/fpang/image-thumbnailer/internal/logging"
	"github.com/fpang/image-thumbnailer/internal/metrics"
	"github.com/fpang/image-thumbnailer/internal/queue"
	"github.com/fpang/image-thumbnailer/internal/thumbnail"
)

func main() {
	initStart := time.Now()
	config.LoadEnvFiles()
	logging.Init()

	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid worker configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg := lambdaboot.InitAWS(ctx)
	clients := lambdaboot.InitS3(awsCfg)
	generator := thumbnail.NewGenerator(clients.Store, clients.Store)
	namespace := logging.EnvOrDefault("THUMBNAIL_METRICS_NAMESPACE", metrics.DefaultNamespace)

	worker := queue.NewWorker(generator, cfg.StatusExchange, cfg.StatusRoutingKey,
		queue.WithResultHook(func(r thumbnail.ResizeResult) {
			metrics.ForResult(metrics.New(namespace), "queue", r).Flush()
		}))

	lambdaboot.StartupLog("thumbnail-worker", initStart).
		Queue("requests", cfg.RabbitMqQueue).
		Queue("statusExchange", cfg.StatusExchange).
		Config("statusRoutingKey", cfg.StatusRoutingKey).
		Config("workers", strconv.Itoa(cfg.Workers)).
		Config("region", awsCfg.Region).
		Log()

	if err := queue.NewService(cfg, worker).Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Worker stopped")
	}
}
