// Package lambdaboot provides the shared Lambda cold-start bootstrap: AWS
// config, the S3-backed store, and the consolidated startup log. Each entry
// point's init() is a short composition of these helpers.
package lambdaboot

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/fpang/image-thumbnailer/internal/logging"
	"github.com/fpang/image-thumbnailer/internal/s3util"
)

// TaggingEnvVar overrides the object tagging applied to uploaded thumbnails.
const TaggingEnvVar = "THUMBNAIL_OBJECT_TAGGING"

// S3Clients holds the S3 client, its presigner, and the store built on it.
type S3Clients struct {
	Client    *s3.Client
	Presigner *s3.PresignClient
	Store     *s3util.Store
}

// InitAWS loads the default AWS config. Fatals on error.
func InitAWS(ctx context.Context) aws.Config {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return cfg
}

// InitS3 creates the S3 client, presigner and store. The client is meant to
// be created once per container and reused across invocations.
func InitS3(cfg aws.Config) S3Clients {
	client := s3.NewFromConfig(cfg)
	var opts []s3util.StoreOption
	if tagging := os.Getenv(TaggingEnvVar); tagging != "" {
		opts = append(opts, s3util.WithTagging(tagging))
	}
	return S3Clients{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Store:     s3util.NewStore(client, opts...),
	}
}

// RequireEnv returns the named environment variable. Fatals if it is empty.
func RequireEnv(name string) string {
	v := os.Getenv(name)
	if v == "" {
		log.Fatal().Str("envVar", name).Msg("Required environment variable is not set")
	}
	return v
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
