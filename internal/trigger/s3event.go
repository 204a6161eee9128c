// Package trigger maps S3 object-created notifications onto thumbnail
// invocations.
package trigger

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/fpang/image-thumbnailer/internal/thumbnail"
)

// Processor runs one invocation. *thumbnail.Generator satisfies it.
type Processor interface {
	Process(ctx context.Context, req thumbnail.ResizeRequest) thumbnail.ResizeResult
}

// BatchResult summarizes one notification.
type BatchResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Keys      []string `json:"thumbnailKeys,omitempty"`
}

// IsThumbnailKey reports whether key names a thumbnail: either the key or
// its base name carries the thumbnail prefix.
func IsThumbnailKey(key string) bool {
	return strings.HasPrefix(key, thumbnail.KeyPrefix) ||
		strings.HasPrefix(path.Base(key), thumbnail.KeyPrefix)
}

// HandleS3Event processes every record in event, writing thumbnails to
// destination. Records are independent: a failure is logged and counted. An
// error is returned only when at least one record was attempted and none
// succeeded. onResult, if non-nil, observes every attempted result.
func HandleS3Event(ctx context.Context, proc Processor, event events.S3Event, destination string, onResult func(thumbnail.ResizeResult)) (BatchResult, error) {
	var batch BatchResult
	var lastErr error

	for _, record := range event.Records {
		bucket := record.S3.Bucket.Name
		key, err := url.QueryUnescape(record.S3.Object.Key)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("rawKey", record.S3.Object.Key).Msg("Undecodable object key, using it as is")
			key = record.S3.Object.Key
		}

		if IsThumbnailKey(key) {
			log.Ctx(ctx).Debug().Str("bucket", bucket).Str("key", key).Msg("Skipping thumbnail object")
			batch.Skipped++
			continue
		}

		result := proc.Process(ctx, thumbnail.ResizeRequest{
			SourceBucket:      bucket,
			ImageKey:          key,
			DestinationBucket: destination,
		})
		if onResult != nil {
			onResult(result)
		}
		if !result.Success {
			log.Ctx(ctx).Warn().Err(result.Err).Str("bucket", bucket).Str("key", key).Msg("Record failed, continuing with batch")
			batch.Failed++
			lastErr = result.Err
			continue
		}
		batch.Processed++
		batch.Keys = append(batch.Keys, result.ThumbnailKey)
	}

	if batch.Failed > 0 && batch.Processed == 0 {
		return batch, fmt.Errorf("all %d records failed, last error: %w", batch.Failed, lastErr)
	}
	return batch, nil
}
