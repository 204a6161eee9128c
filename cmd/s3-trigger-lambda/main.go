// Package main provides the Lambda entry point for S3 object-created
// notifications.
//
// Each record in the notification becomes one thumbnail invocation: the
// record's bucket and URL-decoded key are the source, DESTINATION_BUCKET is
// the destination. Objects that are themselves thumbnails are skipped so the
// function can listen on its own destination bucket. The invocation fails
// only when every attempted record failed.
//
// Memory: 512 MB
// Timeout: 2 minutes
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/rs/zerolog/log"

	"github.com/fpang/image-thumbnailer/internal/lambdaboot"
	"github.com/fpang/image-thumbnailer/internal/logging"
	"github.com/fpang/image-thumbnailer/internal/metrics"
	"github.com/fpang/image-thumbnailer/internal/thumbnail"
	"github.com/fpang/image-thumbnailer/internal/trigger"
)

var (
	generator         *thumbnail.Generator
	destinationBucket string
	metricsNamespace  string
)

var coldStart = true

func init() {
	initStart := time.Now()
	logging.Init()

	cfg := lambdaboot.InitAWS(context.Background())
	clients := lambdaboot.InitS3(cfg)
	generator = thumbnail.NewGenerator(clients.Store, clients.Store)
	destinationBucket = lambdaboot.RequireEnv("DESTINATION_BUCKET")
	metricsNamespace = logging.EnvOrDefault("THUMBNAIL_METRICS_NAMESPACE", metrics.DefaultNamespace)

	lambdaboot.StartupLog("s3-trigger-lambda", initStart).
		S3Bucket("destination", destinationBucket).
		Config("region", cfg.Region).
		Config("metricsNamespace", metricsNamespace).
		Log()
}

func handler(ctx context.Context, event events.S3Event) (trigger.BatchResult, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "s3-trigger-lambda").Msg("Cold start, first invocation")
	}

	logger := log.With().Int("records", len(event.Records)).Logger()
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With().Str("requestId", lc.AwsRequestID).Logger()
	}
	ctx = logger.WithContext(ctx)

	batch, err := trigger.HandleS3Event(ctx, generator, event, destinationBucket, func(r thumbnail.ResizeResult) {
		metrics.ForResult(metrics.New(metricsNamespace), "s3", r).Flush()
	})
	logger.Info().
		Int("processed", batch.Processed).
		Int("failed", batch.Failed).
		Int("skipped", batch.Skipped).
		Msg("Notification processed")
	return batch, err
}

func main() {
	lambda.Start(handler)
}
