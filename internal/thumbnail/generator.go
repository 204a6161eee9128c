// Package thumbnail implements the thumbnail pipeline: fetch a source object,
// decode it, scale it into a bounded box, re-encode it in its own format and
// write it next to the original under a derived key.
//
// Every failure is reported through ResizeResult rather than returned, so the
// invocation entry points always have a structured outcome to render.
package thumbnail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fpang/image-thumbnailer/internal/imageproc"
)

// Thumbnail bounds and the prefix for derived keys.
const (
	MaxWidth  = 200
	MaxHeight = 200
	KeyPrefix = "thumbnail-"
)

// ResizeRequest identifies the source object and the destination bucket for
// one invocation.
type ResizeRequest struct {
	SourceBucket      string
	ImageKey          string
	DestinationBucket string
}

// Validate reports every missing field by its invocation record name.
func (r ResizeRequest) Validate() error {
	var missing []string
	if r.SourceBucket == "" {
		missing = append(missing, "sourceBucket")
	}
	if r.ImageKey == "" {
		missing = append(missing, "imageKey")
	}
	if r.DestinationBucket == "" {
		missing = append(missing, "destinationBucket")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required parameters: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ResizeResult is the outcome of one invocation. Err is non-nil iff Success
// is false.
type ResizeResult struct {
	Success       bool
	OriginalKey   string
	ThumbnailKey  string
	OriginalSize  imageproc.Dimensions
	ThumbnailSize imageproc.Dimensions
	// Format is the format the thumbnail was encoded in.
	Format      string
	ContentType string

	OriginalBytes  int
	ThumbnailBytes int
	Duration       time.Duration

	Err error
}

// ThumbnailKey derives the destination key for an image key.
func ThumbnailKey(imageKey string) string {
	return KeyPrefix + imageKey
}

// Generator runs the thumbnail pipeline against a source and destination
// store. A Generator holds no per-call state and is safe for concurrent use
// when its stores are.
type Generator struct {
	source  Getter
	dest    Putter
	maxW    int
	maxH    int
	quality int
}

// Option configures a Generator.
type Option func(*Generator)

// WithBounds overrides the thumbnail bounding box.
func WithBounds(maxW, maxH int) Option {
	return func(g *Generator) {
		g.maxW, g.maxH = maxW, maxH
	}
}

// WithQuality overrides the encoder quality for lossy formats.
func WithQuality(q int) Option {
	return func(g *Generator) {
		g.quality = q
	}
}

// NewGenerator creates a Generator reading from source and writing to dest.
func NewGenerator(source Getter, dest Putter, opts ...Option) *Generator {
	g := &Generator{
		source:  source,
		dest:    dest,
		maxW:    MaxWidth,
		maxH:    MaxHeight,
		quality: imageproc.DefaultQuality,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Process runs validate, fetch, decode, resize, encode and store in order.
// The first failing step aborts the call; nothing is retried.
func (g *Generator) Process(ctx context.Context, req ResizeRequest) (result ResizeResult) {
	start := time.Now()
	result.OriginalKey = req.ImageKey

	logger := log.Ctx(ctx).With().
		Str("sourceBucket", req.SourceBucket).
		Str("imageKey", req.ImageKey).
		Str("destinationBucket", req.DestinationBucket).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Err = newError(UnexpectedError, "", fmt.Errorf("panic: %v", r))
		}
		result.Duration = time.Since(start)

		if result.Err != nil {
			logger.Error().
				Err(result.Err).
				Str("kind", string(KindOf(result.Err))).
				Dur("duration", result.Duration).
				Msg("Error processing image")
			return
		}
		logger.Info().
			Str("thumbnailKey", result.ThumbnailKey).
			Str("originalSize", result.OriginalSize.String()).
			Str("thumbnailSize", result.ThumbnailSize.String()).
			Str("thumbnailBytes", humanize.Bytes(uint64(result.ThumbnailBytes))).
			Dur("duration", result.Duration).
			Msg("Successfully uploaded thumbnail")
	}()

	if err := g.run(ctx, req, &result, logger); err != nil {
		result.Err = err
		return result
	}
	result.Success = true
	return result
}

func (g *Generator) run(ctx context.Context, req ResizeRequest, result *ResizeResult, logger zerolog.Logger) error {
	if err := req.Validate(); err != nil {
		return newError(ValidationError, "", err)
	}

	logger.Info().Msg("Processing image")

	obj, err := g.source.Get(ctx, req.SourceBucket, req.ImageKey)
	if err != nil {
		return newError(StorageReadError, "fetch", fmt.Errorf("%s/%s: %w", req.SourceBucket, req.ImageKey, err))
	}
	if obj == nil {
		return newError(StorageReadError, "fetch", fmt.Errorf("%s/%s: empty response", req.SourceBucket, req.ImageKey))
	}
	result.OriginalBytes = len(obj.Data)
	result.ContentType = obj.ContentType
	logger.Debug().
		Str("contentType", obj.ContentType).
		Str("bytes", humanize.Bytes(uint64(len(obj.Data)))).
		Msg("Source object fetched")

	img, err := imageproc.Decode(obj.Data)
	if err != nil {
		return newError(DecodeError, "decode", err)
	}
	result.OriginalSize = img.Size
	logger.Info().Str("originalSize", img.Size.String()).Str("format", img.Detected).Msg("Original size")

	thumb, size := imageproc.Thumbnail(img, g.maxW, g.maxH)
	result.ThumbnailSize = size
	logger.Info().Str("thumbnailSize", size.String()).Msg("Resized")

	data, err := imageproc.Encode(thumb, img.Format, g.quality)
	if err != nil {
		return newError(UnexpectedError, "encode", err)
	}
	result.Format = img.Format.String()
	result.ThumbnailBytes = len(data)

	key := ThumbnailKey(req.ImageKey)
	if err := g.dest.Put(ctx, req.DestinationBucket, key, data, obj.ContentType); err != nil {
		return newError(StorageWriteError, "store", fmt.Errorf("%s/%s: %w", req.DestinationBucket, key, err))
	}
	result.ThumbnailKey = key
	return nil
}
