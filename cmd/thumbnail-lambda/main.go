// Package main provides the Lambda entry point for direct thumbnail
// invocations.
//
// The payload is an invocation record naming the source bucket, the image key
// and the destination bucket. The Lambda fetches the image, scales it to fit
// 200x200, writes it to the destination as thumbnail-<key>, and returns a
// {statusCode, body, success} record. Failures are reported in the record;
// the function itself never returns an error.
//
// Memory: 512 MB
// Timeout: 1 minute
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/rs/zerolog/log"

	"github.com/fpang/image-thumbnailer/internal/lambdaboot"
	"github.com/fpang/image-thumbnailer/internal/logging"
	"github.com/fpang/image-thumbnailer/internal/metrics"
	"github.com/fpang/image-thumbnailer/internal/thumbnail"
)

var (
	generator        *thumbnail.Generator
	metricsNamespace string
)

var coldStart = true

func init() {
	initStart := time.Now()
	logging.Init()

	cfg := lambdaboot.InitAWS(context.Background())
	clients := lambdaboot.InitS3(cfg)
	generator = thumbnail.NewGenerator(clients.Store, clients.Store)
	metricsNamespace = logging.EnvOrDefault("THUMBNAIL_METRICS_NAMESPACE", metrics.DefaultNamespace)

	lambdaboot.StartupLog("thumbnail-lambda", initStart).
		Config("region", cfg.Region).
		Config("metricsNamespace", metricsNamespace).
		Config("maxBounds", "200x200").
		Log()
}

func handler(ctx context.Context, event thumbnail.Event) (thumbnail.Response, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "thumbnail-lambda").Msg("Cold start, first invocation")
	}

	logger := log.With().Logger()
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With().Str("requestId", lc.AwsRequestID).Logger()
	}
	ctx = logger.WithContext(ctx)

	resp, result := generator.Handle(ctx, event)
	metrics.ForResult(metrics.New(metricsNamespace), "invoke", result).Flush()
	return resp, nil
}

func main() {
	lambda.Start(handler)
}
