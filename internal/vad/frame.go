package vad

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/chaz8081/vadsplit/internal/failure"
	"github.com/chaz8081/vadsplit/internal/logging"
)

// FrameDetector scores audio with a Prober and derives intervals with
// SpeechTimestamps.
type FrameDetector struct {
	prober Prober
	params Params
	log    *zap.Logger
}

// NewFrameDetector returns a Detector over p. The window size in params is
// taken from the prober.
func NewFrameDetector(p Prober, params Params, log *zap.Logger) *FrameDetector {
	params.WindowSize = p.WindowSize()
	if params.SampleRate <= 0 {
		params.SampleRate = SampleRate
	}
	return &FrameDetector{prober: p, params: params, log: logging.OrNop(log)}
}

// Params returns the effective parameters.
func (d *FrameDetector) Params() Params { return d.params }

// Detect implements Detector. The result is never nil.
func (d *FrameDetector) Detect(ctx context.Context, samples []float32, sampleRate int) ([]Interval, error) {
	if sampleRate != d.params.SampleRate {
		return nil, failure.Errorf(failure.Detector, "vad: unsupported sample rate %d Hz, want %d", sampleRate, d.params.SampleRate)
	}
	if len(samples) == 0 {
		return []Interval{}, nil
	}

	probs, err := d.prober.Probabilities(ctx, samples)
	if err != nil {
		return nil, failure.Wrap(failure.Detector, err)
	}
	if want := (len(samples) + d.params.WindowSize - 1) / d.params.WindowSize; len(probs) != want {
		return nil, failure.Errorf(failure.Detector, "vad: prober returned %d probabilities for %d windows", len(probs), want)
	}

	intervals := SpeechTimestamps(probs, len(samples), d.params)
	if intervals == nil {
		intervals = []Interval{}
	}
	d.log.Debug("speech detected",
		zap.Int("windows", len(probs)),
		zap.Int("intervals", len(intervals)),
	)
	return intervals, nil
}

// Close releases the prober when it holds resources.
func (d *FrameDetector) Close() error {
	if c, ok := d.prober.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
