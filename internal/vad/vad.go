// Package vad finds speech in mono audio.
//
// A Detector maps samples to speech intervals. The production detector is a
// FrameDetector over the Silero VAD ONNX model: the model scores fixed-size
// windows, and SpeechTimestamps turns the score trace into intervals.
package vad

import (
	"context"

	"github.com/chaz8081/vadsplit/internal/config"
)

// SampleRate is the only rate the Silero model is run at here.
const SampleRate = config.CanonicalSampleRate

// Interval is a half-open speech range [Start, End) in samples at SampleRate.
type Interval struct {
	Start int
	End   int
}

// Len returns the interval length in samples.
func (iv Interval) Len() int { return iv.End - iv.Start }

// Detector finds speech intervals in mono audio.
type Detector interface {
	Detect(ctx context.Context, samples []float32, sampleRate int) ([]Interval, error)
}

// Prober scores audio in consecutive windows of WindowSize samples. The last
// window is zero-padded. Each call starts from fresh model state.
type Prober interface {
	Probabilities(ctx context.Context, samples []float32) ([]float32, error)
	WindowSize() int
}

// Params controls how window probabilities become intervals.
type Params struct {
	Threshold float32
	// NegThreshold ends speech. Zero means Threshold - 0.15.
	NegThreshold         float32
	MinSpeechDurationMs  int
	MinSilenceDurationMs int
	SpeechPadMs          int
	// MaxSpeechDurationS splits longer runs. Zero means no limit.
	MaxSpeechDurationS float64
	WindowSize         int
	SampleRate         int
}

// DefaultParams returns the reference Silero settings for 16 kHz.
func DefaultParams() Params {
	return Params{
		Threshold:            0.5,
		MinSpeechDurationMs:  250,
		MinSilenceDurationMs: 100,
		SpeechPadMs:          30,
		WindowSize:           512,
		SampleRate:           SampleRate,
	}
}

// ParamsFromConfig applies detector config on top of DefaultParams.
func ParamsFromConfig(c config.DetectorConfig) Params {
	p := DefaultParams()
	if c.Threshold > 0 {
		p.Threshold = c.Threshold
	}
	p.MinSpeechDurationMs = c.MinSpeechDurationMs
	p.MinSilenceDurationMs = c.MinSilenceDurationMs
	p.SpeechPadMs = c.SpeechPadMs
	p.MaxSpeechDurationS = c.MaxSpeechDurationS
	return p
}
