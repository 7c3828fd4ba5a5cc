package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters and histograms for one process. Each instance
// owns a private registry so tests and library callers never collide on the
// global one.
type Metrics struct {
	Registry *prometheus.Registry

	// Pipeline
	Runs          *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Segments      prometheus.Counter
	SegmentLength prometheus.Histogram

	// Model acquisition
	AcquireAttempts *prometheus.CounterVec
	DownloadBytes   prometheus.Counter

	// Audio
	InputDuration prometheus.Histogram
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vadsplit_runs_total",
			Help: "Pipeline runs by result status and failure kind",
		}, []string{"status", "kind"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vadsplit_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4 minutes
		}, []string{"stage"}),
		Segments: f.NewCounter(prometheus.CounterOpts{
			Name: "vadsplit_segments_written_total",
			Help: "Segment files written",
		}),
		SegmentLength: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vadsplit_segment_duration_seconds",
			Help:    "Duration of written speech segments",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms to ~1 minute
		}),

		AcquireAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vadsplit_model_acquire_attempts_total",
			Help: "Model acquisition attempts by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		DownloadBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "vadsplit_download_bytes_total",
			Help: "Bytes downloaded while acquiring the model",
		}),

		InputDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vadsplit_input_duration_seconds",
			Help:    "Duration of normalized input audio",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),
	}
}

// ObserveStage records how long a stage took since start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RecordRun counts a finished run. kind is empty on success.
func (m *Metrics) RecordRun(status, kind string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status, kind).Inc()
}

// RecordAttempt counts one acquisition strategy outcome.
func (m *Metrics) RecordAttempt(strategy string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.AcquireAttempts.WithLabelValues(strategy, outcome).Inc()
}

// RecordSegment counts one written segment of the given length.
func (m *Metrics) RecordSegment(d time.Duration) {
	if m == nil {
		return
	}
	m.Segments.Inc()
	m.SegmentLength.Observe(d.Seconds())
}

// AddDownloaded counts downloaded bytes.
func (m *Metrics) AddDownloaded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.DownloadBytes.Add(float64(n))
}

// ObserveInput records the duration of a normalized input.
func (m *Metrics) ObserveInput(d time.Duration) {
	if m == nil {
		return
	}
	m.InputDuration.Observe(d.Seconds())
}

// WriteTextfile writes every metric in Prometheus text format for the
// node_exporter textfile collector. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	return nil
}
