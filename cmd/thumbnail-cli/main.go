package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/image-thumbnailer/internal/config"
	"github.com/fpang/image-thumbnailer/internal/filestore"
	"github.com/fpang/image-thumbnailer/internal/lambdaboot"
	"github.com/fpang/image-thumbnailer/internal/logging"
	"github.com/fpang/image-thumbnailer/internal/metrics"
	"github.com/fpang/image-thumbnailer/internal/s3util"
	"github.com/fpang/image-thumbnailer/internal/thumbnail"
	"github.com/fpang/image-thumbnailer/internal/trigger"
)

// CLI flags
var (
	sourceBucketFlag      string
	keyFlag               string
	destinationBucketFlag string
	localRootFlag         string
	presignFlag           time.Duration
	metricsFlag           bool
	watchRootFlag         string
	debounceFlag          time.Duration
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "thumbnail-cli",
	Short: "Generate image thumbnails from S3 or a local directory",
	Long: `thumbnail-cli runs the same thumbnail pipeline as the Lambda functions from a
terminal, against S3 or a local directory of bucket subdirectories. Images are scaled to fit 200x200 and written to the
destination bucket as thumbnail-<key>.

Examples:
  thumbnail-cli resize --source-bucket photos --key cat.jpg --destination-bucket thumbs
  thumbnail-cli resize --source-bucket photos --key cat.jpg --destination-bucket thumbs --presign 15m
  thumbnail-cli resize --local-root ./testdata --source-bucket in --key cat.jpg --destination-bucket out
  thumbnail-cli watch --local-root ./testdata --source-bucket in --destination-bucket out`,
	SilenceUsage: true,
}

var resizeCmd = &cobra.Command{
	Use:   "resize",
	Short: "Create a thumbnail for one image",
	RunE:  runResize,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Create thumbnails for images as they appear in a local bucket directory",
	RunE:  runWatch,
}

func init() {
	// Flag defaults below read the environment, so the dotenv files must be
	// loaded before they are registered.
	config.LoadEnvFiles()

	resizeCmd.Flags().StringVarP(&sourceBucketFlag, "source-bucket", "s", os.Getenv("SOURCE_BUCKET"), "Bucket holding the original image")
	resizeCmd.Flags().StringVarP(&keyFlag, "key", "k", "", "Object key of the original image")
	resizeCmd.Flags().StringVarP(&destinationBucketFlag, "destination-bucket", "d", os.Getenv("DESTINATION_BUCKET"), "Bucket to write the thumbnail to")
	resizeCmd.Flags().StringVar(&localRootFlag, "local-root", "", "Use a directory instead of S3; buckets are its subdirectories")
	resizeCmd.Flags().DurationVar(&presignFlag, "presign", 0, "Also print a presigned GET URL valid for this long (S3 only)")
	resizeCmd.Flags().BoolVar(&metricsFlag, "metrics", false, "Emit the EMF metrics document on stdout")
	rootCmd.AddCommand(resizeCmd)

	watchCmd.Flags().StringVarP(&sourceBucketFlag, "source-bucket", "s", os.Getenv("SOURCE_BUCKET"), "Bucket directory to watch")
	watchCmd.Flags().StringVarP(&destinationBucketFlag, "destination-bucket", "d", os.Getenv("DESTINATION_BUCKET"), "Bucket directory to write thumbnails to")
	watchCmd.Flags().StringVar(&watchRootFlag, "local-root", ".", "Directory holding the bucket directories")
	watchCmd.Flags().DurationVar(&debounceFlag, "debounce", filestore.DefaultDebounce, "Quiet period before a changed file is processed")
	watchCmd.Flags().BoolVar(&metricsFlag, "metrics", false, "Emit an EMF metrics document per image on stdout")
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runResize(cmd *cobra.Command, args []string) error {
	logging.Init()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if localRootFlag != "" && presignFlag > 0 {
		return fmt.Errorf("--presign requires S3 mode, not --local-root")
	}

	var (
		store     thumbnail.Store
		presigner func(ctx context.Context, bucket, key string) (string, error)
	)
	if localRootFlag != "" {
		store = filestore.New(localRootFlag)
		log.Debug().Str("root", localRootFlag).Msg("Using local directory store")
	} else {
		clients := lambdaboot.InitS3(lambdaboot.InitAWS(ctx))
		store = clients.Store
		presigner = func(ctx context.Context, bucket, key string) (string, error) {
			return s3util.PresignGet(ctx, clients.Presigner, bucket, key, presignFlag)
		}
	}

	gen := thumbnail.NewGenerator(store, store)
	resp, result := gen.Handle(ctx, thumbnail.Event{
		SourceBucket:      sourceBucketFlag,
		ImageKey:          keyFlag,
		DestinationBucket: destinationBucketFlag,
	})
	if metricsFlag {
		metrics.ForResult(metrics.New(metrics.DefaultNamespace), "cli", result).Flush()
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !result.Success {
		return fmt.Errorf("thumbnail failed: %w", result.Err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%s (%s) -> %s (%s), %s to %s in %s\n",
		result.OriginalKey, result.OriginalSize,
		result.ThumbnailKey, result.ThumbnailSize,
		humanize.Bytes(uint64(result.OriginalBytes)),
		humanize.Bytes(uint64(result.ThumbnailBytes)),
		result.Duration.Round(time.Millisecond))

	if presignFlag > 0 && presigner != nil {
		url, err := presigner(ctx, destinationBucketFlag, result.ThumbnailKey)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), url)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	logging.Init()
	if sourceBucketFlag == "" || destinationBucketFlag == "" {
		return fmt.Errorf("--source-bucket and --destination-bucket are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := filestore.New(watchRootFlag)
	gen := thumbnail.NewGenerator(store, store)
	return store.Watch(ctx, sourceBucketFlag, debounceFlag, func(key string) {
		if trigger.IsThumbnailKey(key) {
			return
		}
		result := gen.Process(ctx, thumbnail.ResizeRequest{
			SourceBucket:      sourceBucketFlag,
			ImageKey:          key,
			DestinationBucket: destinationBucketFlag,
		})
		if metricsFlag {
			metrics.ForResult(metrics.New(metrics.DefaultNamespace), "cli", result).Flush()
		}
		if result.Success {
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s)\n", key, result.ThumbnailKey, humanize.Bytes(uint64(result.ThumbnailBytes)))
		}
	})
}
