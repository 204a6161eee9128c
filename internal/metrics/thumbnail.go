package metrics

import (
	"github.com/fpang/image-thumbnailer/internal/thumbnail"
)

// Outcome dimension values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ForResult builds the per-invocation document for a thumbnail result.
// trigger names the entry point ("invoke", "s3", "queue", "cli").
func ForResult(r *Recorder, trigger string, result thumbnail.ResizeResult) *Recorder {
	r.Dimension("Trigger", trigger).
		Count("Invocations").
		Metric("DurationMs", float64(result.Duration.Milliseconds()), UnitMilliseconds).
		Property("imageKey", result.OriginalKey)

	if !result.Success {
		return r.Dimension("Outcome", OutcomeFailure).
			Property("errorKind", string(thumbnail.KindOf(result.Err)))
	}
	return r.Dimension("Outcome", OutcomeSuccess).
		Metric("OriginalBytes", float64(result.OriginalBytes), UnitBytes).
		Metric("ThumbnailBytes", float64(result.ThumbnailBytes), UnitBytes).
		Property("thumbnailKey", result.ThumbnailKey).
		Property("originalSize", result.OriginalSize.String()).
		Property("thumbnailSize", result.ThumbnailSize.String())
}
