// Package metrics writes CloudWatch Embedded Metric Format (EMF) documents:
// one JSON line per invocation on stdout, from which CloudWatch Logs
// extracts the metrics.
//
// See: https://docs.aws.amazon.com/AmazonCloudWatch/latest/monitoring/CloudWatch_Embedded_Metric_Format_Specification.html
package metrics

import (
	"encoding/json"
	"io"
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
)

// CloudWatch metric units.
const (
	UnitMilliseconds = "Milliseconds"
	UnitCount        = "Count"
	UnitBytes        = "Bytes"
	UnitNone         = "None"
)

// DefaultNamespace is used when THUMBNAIL_METRICS_NAMESPACE is unset.
const DefaultNamespace = "ImageThumbnailer"

type sample struct {
	value float64
	unit  string
}

// Recorder collects one invocation's dimensions, metrics and properties.
// Use one per invocation; it is not safe for concurrent use.
type Recorder struct {
	namespace  string
	out        io.Writer
	now        func() time.Time
	dimKeys    []string
	dimensions map[string]string
	samples    map[string]sample
	properties map[string]any
}

// New returns a Recorder writing to stdout.
func New(namespace string) *Recorder {
	return NewWithWriter(namespace, os.Stdout)
}

// NewWithWriter returns a Recorder writing to out. Inside Lambda the
// FunctionName dimension is preset.
func NewWithWriter(namespace string, out io.Writer) *Recorder {
	r := &Recorder{
		namespace:  namespace,
		out:        out,
		now:        time.Now,
		dimensions: map[string]string{},
		samples:    map[string]sample{},
		properties: map[string]any{},
	}
	if fn := os.Getenv("AWS_LAMBDA_FUNCTION_NAME"); fn != "" {
		r.Dimension("FunctionName", fn)
	}
	return r
}

// Dimension sets a dimension. Dimensions appear in the dimension set in the
// order first added.
func (r *Recorder) Dimension(key, value string) *Recorder {
	if _, ok := r.dimensions[key]; !ok {
		r.dimKeys = append(r.dimKeys, key)
	}
	r.dimensions[key] = value
	return r
}

// Metric sets a metric value.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	r.samples[name] = sample{value: value, unit: unit}
	return r
}

// Count sets a count metric to 1.
func (r *Recorder) Count(name string) *Recorder {
	return r.Metric(name, 1, UnitCount)
}

// Property sets a field that is logged but not extracted as a metric.
func (r *Recorder) Property(key string, value any) *Recorder {
	r.properties[key] = value
	return r
}

// Flush writes the document, logging instead of returning any error.
func (r *Recorder) Flush() {
	if err := r.Emit(); err != nil {
		log.Warn().Err(err).Str("namespace", r.namespace).Msg("Failed to write EMF document")
	}
}

// Emit writes the document as one JSON line. A Recorder without metrics
// writes nothing.
func (r *Recorder) Emit() error {
	if len(r.samples) == 0 {
		return nil
	}

	type metricDef struct {
		Name string `json:"Name"`
		Unit string `json:"Unit"`
	}
	names := make([]string, 0, len(r.samples))
	for name := range r.samples {
		names = append(names, name)
	}
	slices.Sort(names)

	doc := make(map[string]any, len(r.properties)+len(r.dimensions)+len(r.samples)+1)
	for k, v := range r.properties {
		doc[k] = v
	}
	for k, v := range r.dimensions {
		doc[k] = v
	}
	defs := make([]metricDef, 0, len(names))
	for _, name := range names {
		s := r.samples[name]
		defs = append(defs, metricDef{Name: name, Unit: s.unit})
		doc[name] = s.value
	}
	doc["_aws"] = map[string]any{
		"Timestamp": r.now().UnixMilli(),
		"CloudWatchMetrics": []map[string]any{{
			"Namespace":  r.namespace,
			"Dimensions": [][]string{slices.Clone(r.dimKeys)},
			"Metrics":    defs,
		}},
	}
	return json.NewEncoder(r.out).Encode(doc)
}
