// Package segment writes detected speech intervals out as WAV files.
package segment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/chaz8081/vadsplit/internal/audio"
	"github.com/chaz8081/vadsplit/internal/config"
	"github.com/chaz8081/vadsplit/internal/failure"
	"github.com/chaz8081/vadsplit/internal/logging"
	"github.com/chaz8081/vadsplit/internal/metrics"
	"github.com/chaz8081/vadsplit/internal/vad"
)

// samplesPerMs converts canonical-rate sample indices to milliseconds.
const samplesPerMs = config.CanonicalSampleRate / 1000

// Segment describes one written file. Times are milliseconds from the start
// of the input.
type Segment struct {
	Index      int     `json:"index"`
	Path       string  `json:"path"`
	StartMs    float64 `json:"start_time"`
	EndMs      float64 `json:"end_time"`
	DurationMs float64 `json:"duration"`
}

// FileName returns the output file name for the 1-based index i.
func FileName(i int) string {
	return fmt.Sprintf("segment_%d.wav", i)
}

// Options configures an Extractor.
type Options struct {
	// CleanupOnFailure removes files already written by a failed Extract.
	CleanupOnFailure bool
	// Encoder defaults to audio.WAVEncoder.
	Encoder audio.Encoder
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Extractor slices a buffer by interval and writes each slice.
type Extractor struct {
	opts Options
	log  *zap.Logger
}

// NewExtractor returns an Extractor.
func NewExtractor(opts Options) *Extractor {
	if opts.Encoder == nil {
		opts.Encoder = audio.WAVEncoder{}
	}
	return &Extractor{opts: opts, log: logging.OrNop(opts.Logger)}
}

// Extract writes <outputDir>/segment_{i}.wav for each interval in order,
// with i starting at 1. Existing files with the same names are replaced.
func (e *Extractor) Extract(ctx context.Context, buf *audio.Buffer, intervals []vad.Interval, outputDir string) ([]Segment, error) {
	if buf == nil {
		return nil, failure.Errorf(failure.Encode, "segment: no audio")
	}
	if buf.SampleRate != config.CanonicalSampleRate {
		return nil, failure.Errorf(failure.Encode, "segment: buffer rate %d Hz, want %d Hz",
			buf.SampleRate, config.CanonicalSampleRate)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, failure.Wrap(failure.IO, fmt.Errorf("segment: create output dir: %w", err))
	}

	warnUnordered(e.log, intervals)

	segments := make([]Segment, 0, len(intervals))
	var written []string
	fail := func(err error) ([]Segment, error) {
		if e.opts.CleanupOnFailure {
			for _, p := range written {
				if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
					e.log.Warn("could not remove partial segment", zap.String("path", p), zap.Error(rmErr))
				}
			}
		}
		return nil, err
	}

	for i, iv := range intervals {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if iv.Start < 0 || iv.Start >= iv.End || iv.End > len(buf.Samples) {
			return fail(failure.Errorf(failure.Detector,
				"segment: invalid interval %d [%d, %d) for %d samples",
				i+1, iv.Start, iv.End, len(buf.Samples)))
		}

		path := filepath.Join(outputDir, FileName(i+1))
		slice := &audio.Buffer{Samples: buf.Samples[iv.Start:iv.End], SampleRate: buf.SampleRate}
		if err := e.opts.Encoder.Encode(path, slice); err != nil {
			// The encoder may have created the file before failing.
			written = append(written, path)
			return fail(failure.Wrap(failure.Encode, err))
		}
		written = append(written, path)

		seg := Segment{
			Index:   i + 1,
			Path:    path,
			StartMs: float64(iv.Start) / samplesPerMs,
			EndMs:   float64(iv.End) / samplesPerMs,
		}
		seg.DurationMs = seg.EndMs - seg.StartMs
		segments = append(segments, seg)

		e.opts.Metrics.RecordSegment(time.Duration(seg.DurationMs * float64(time.Millisecond)))
		e.log.Debug("wrote segment",
			zap.Int("index", seg.Index),
			zap.String("path", path),
			zap.Float64("start_ms", seg.StartMs),
			zap.Float64("end_ms", seg.EndMs),
		)
	}
	return segments, nil
}

// warnUnordered logs once when intervals are out of order or overlap. They
// are still written as given.
func warnUnordered(log *zap.Logger, intervals []vad.Interval) {
	for i := 1; i < len(intervals); i++ {
		prev, cur := intervals[i-1], intervals[i]
		if cur.Start < prev.End {
			log.Warn("speech intervals overlap or are out of order",
				zap.Int("index", i+1),
				zap.Int("prev_end", prev.End),
				zap.Int("start", cur.Start),
			)
			return
		}
	}
}
