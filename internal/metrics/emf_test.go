package metrics

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fpang/image-thumbnailer/internal/imageproc"
	"github.com/fpang/image-thumbnailer/internal/thumbnail"
)

func flushToMap(t *testing.T, r *Recorder, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	r.Flush()
	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, buf.String())
	}
	return doc
}

func TestNew_AutoDimension(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "TestFunction")

	r := New("TestNamespace")
	if r.namespace != "TestNamespace" {
		t.Errorf("expected namespace TestNamespace, got %s", r.namespace)
	}
	if r.dimensions["FunctionName"] != "TestFunction" {
		t.Errorf("expected FunctionName dimension TestFunction, got %s", r.dimensions["FunctionName"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")

	var buf bytes.Buffer
	rec := NewWithWriter("ImageThumbnailer", &buf)
	rec.now = func() time.Time { return time.UnixMilli(1700000000000) }
	rec.Dimension("Outcome", "success")
	rec.Metric("DurationMs", 1234.5, UnitMilliseconds)
	rec.Metric("Invocations", 1, UnitCount)
	rec.Property("imageKey", "cat.jpg")

	doc := flushToMap(t, rec, &buf)

	awsMap, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	if awsMap["Timestamp"] != float64(1700000000000) {
		t.Errorf("Timestamp = %v", awsMap["Timestamp"])
	}
	cwArr, ok := awsMap["CloudWatchMetrics"].([]interface{})
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}
	cw := cwArr[0].(map[string]interface{})
	if cw["Namespace"] != "ImageThumbnailer" {
		t.Errorf("expected namespace ImageThumbnailer, got %v", cw["Namespace"])
	}
	metricsArr := cw["Metrics"].([]interface{})
	if len(metricsArr) != 2 || metricsArr[0].(map[string]interface{})["Name"] != "DurationMs" {
		t.Errorf("metric definitions not sorted by name: %v", metricsArr)
	}

	if doc["Outcome"] != "success" {
		t.Errorf("expected Outcome=success, got %v", doc["Outcome"])
	}
	if doc["DurationMs"] != 1234.5 {
		t.Errorf("expected DurationMs=1234.5, got %v", doc["DurationMs"])
	}
	if doc["imageKey"] != "cat.jpg" {
		t.Errorf("expected imageKey=cat.jpg, got %v", doc["imageKey"])
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("Test", &buf).Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", buf.String())
	}
}

func TestRecorder_Chaining(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	rec := New("Test").
		Dimension("Op", "test").
		Metric("Duration", 100, UnitMilliseconds).
		Count("Calls").
		Property("id", "xyz")

	if rec.dimensions["Op"] != "test" {
		t.Error("chaining Dimension failed")
	}
	if rec.samples["Duration"].value != 100 {
		t.Error("chaining Metric failed")
	}
	if s := rec.samples["Calls"]; s.value != 1 || s.unit != UnitCount {
		t.Error("chaining Count failed")
	}
	if rec.properties["id"] != "xyz" {
		t.Error("chaining Property failed")
	}
}

func TestRecorder_DimensionOrder(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "fn")
	var buf bytes.Buffer
	rec := NewWithWriter("Test", &buf).
		Dimension("Trigger", "s3").
		Dimension("Outcome", "failure").
		Dimension("Trigger", "queue").
		Count("Invocations")

	doc := flushToMap(t, rec, &buf)
	cw := doc["_aws"].(map[string]interface{})["CloudWatchMetrics"].([]interface{})[0].(map[string]interface{})
	set := cw["Dimensions"].([]interface{})[0].([]interface{})
	want := []string{"FunctionName", "Trigger", "Outcome"}
	if len(set) != len(want) {
		t.Fatalf("dimension set = %v, want %v", set, want)
	}
	for i, k := range want {
		if set[i] != k {
			t.Errorf("dimension set = %v, want %v", set, want)
			break
		}
	}
	if doc["Trigger"] != "queue" {
		t.Errorf("Trigger = %v, want last value queue", doc["Trigger"])
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestRecorder_EmitError(t *testing.T) {
	rec := NewWithWriter("Test", failingWriter{}).Count("Invocations")
	if err := rec.Emit(); err == nil {
		t.Error("Emit() should report the write error")
	}
	rec.Flush()
}

func TestForResult_Success(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	var buf bytes.Buffer

	result := thumbnail.ResizeResult{
		Success:        true,
		OriginalKey:    "cat.jpg",
		ThumbnailKey:   "thumbnail-cat.jpg",
		OriginalSize:   imageproc.Dimensions{Width: 800, Height: 600},
		ThumbnailSize:  imageproc.Dimensions{Width: 200, Height: 150},
		OriginalBytes:  50000,
		ThumbnailBytes: 4000,
		Duration:       42 * time.Millisecond,
	}
	doc := flushToMap(t, ForResult(NewWithWriter(DefaultNamespace, &buf), "invoke", result), &buf)

	if doc["Outcome"] != OutcomeSuccess || doc["Trigger"] != "invoke" {
		t.Errorf("dimensions = %v / %v", doc["Outcome"], doc["Trigger"])
	}
	if doc["ThumbnailBytes"] != float64(4000) || doc["DurationMs"] != float64(42) {
		t.Errorf("metrics = %v / %v", doc["ThumbnailBytes"], doc["DurationMs"])
	}
	if doc["thumbnailSize"] != "200x150" {
		t.Errorf("thumbnailSize = %v", doc["thumbnailSize"])
	}
}

func TestForResult_Failure(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	var buf bytes.Buffer

	result := thumbnail.ResizeResult{
		OriginalKey: "cat.jpg",
		Err:         &thumbnail.Error{Kind: thumbnail.StorageReadError, Op: "fetch", Err: errors.New("gone")},
	}
	doc := flushToMap(t, ForResult(NewWithWriter(DefaultNamespace, &buf), "s3", result), &buf)

	if doc["Outcome"] != OutcomeFailure {
		t.Errorf("Outcome = %v", doc["Outcome"])
	}
	if doc["errorKind"] != string(thumbnail.StorageReadError) {
		t.Errorf("errorKind = %v", doc["errorKind"])
	}
	if _, ok := doc["ThumbnailBytes"]; ok {
		t.Error("failure document should not carry ThumbnailBytes")
	}
}
