package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
	"go.uber.org/zap"

	"github.com/chaz8081/vadsplit/internal/failure"
	"github.com/chaz8081/vadsplit/internal/logging"
)

// Normalizer turns an input file into mono audio at a target rate.
type Normalizer struct {
	decoder Decoder
	log     *zap.Logger
}

// NewNormalizer returns a Normalizer that reads files with dec.
func NewNormalizer(dec Decoder, log *zap.Logger) *Normalizer {
	return &Normalizer{decoder: dec, log: logging.OrNop(log)}
}

// Normalize decodes path, keeps the first channel and resamples it to
// targetRate. Audio already at targetRate is returned untouched.
func (n *Normalizer) Normalize(ctx context.Context, path string, targetRate int) (*Buffer, error) {
	if targetRate <= 0 {
		return nil, failure.Errorf(failure.Resample, "audio: invalid target rate %d", targetRate)
	}
	if err := CheckInput(path); err != nil {
		return nil, err
	}

	clip, err := n.decoder.Decode(ctx, path)
	if err != nil {
		return nil, failure.Wrap(failure.Decode, err)
	}
	if clip.Channels < 1 || clip.SampleRate <= 0 {
		return nil, failure.Errorf(failure.Decode, "audio: decode %s: no audio stream", path)
	}

	mono := clip.Channel(0)
	n.log.Debug("decoded input",
		zap.String("path", path),
		zap.Int("rate", clip.SampleRate),
		zap.Int("channels", clip.Channels),
		zap.Int("frames", len(mono)),
	)
	if clip.SampleRate == targetRate {
		return &Buffer{Samples: mono, SampleRate: targetRate}, nil
	}

	out, err := Resample(mono, clip.SampleRate, targetRate)
	if err != nil {
		return nil, failure.Wrap(failure.Resample, err)
	}
	n.log.Debug("resampled input",
		zap.Int("from", clip.SampleRate),
		zap.Int("to", targetRate),
		zap.Int("samples", len(out)),
	)
	return &Buffer{Samples: out, SampleRate: targetRate}, nil
}

// CheckInput verifies that path names an existing regular file.
func CheckInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return failure.Wrap(failure.IO, fmt.Errorf("audio: input file %s: %w", path, err))
	}
	if !info.Mode().IsRegular() {
		return failure.Errorf(failure.IO, "audio: input file %s: not a regular file", path)
	}
	return nil
}

// flusher is implemented by resamplers that buffer filter history.
type flusher interface {
	Flush() ([]float64, error)
}

// resampleMarginSec is the silence added on both sides of the input so the
// filter is fully primed at the first sample and fully drained at the last.
const resampleMarginSec = 0.1

// resampleDelays caches the measured output delay per rate pair.
var resampleDelays sync.Map // [2]int -> float64

// Resample converts mono samples between rates with a high-quality
// bandlimited filter. The result has exactly round(len * to / from) samples
// and output sample k lines up with input time k / to.
func Resample(samples []float32, from, to int) ([]float32, error) {
	if from <= 0 || to <= 0 {
		return nil, failure.Errorf(failure.Resample, "audio: resample %d Hz to %d Hz: invalid rate", from, to)
	}
	if from == to {
		return samples, nil
	}
	want := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	if want == 0 {
		return []float32{}, nil
	}

	delay, err := resampleDelay(from, to)
	if err != nil {
		return nil, err
	}

	margin := int(math.Ceil(resampleMarginSec * float64(from)))
	in := make([]float64, len(samples)+2*margin)
	for i, s := range samples {
		in[margin+i] = float64(s)
	}
	out, err := runResampler(in, from, to)
	if err != nil {
		return nil, err
	}

	// Input sample i lands at output (i+margin)*to/from + delay.
	offset := int(math.Round(float64(margin)*float64(to)/float64(from) + delay))
	res := make([]float32, want)
	for k := range res {
		if j := k + offset; j >= 0 && j < len(out) {
			res[k] = float32(out[j])
		}
	}
	return res, nil
}

// runResampler pushes in through a fresh resampler and drains it.
func runResampler(in []float64, from, to int) ([]float64, error) {
	var r resampling.Resampler
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, failure.Errorf(failure.Resample, "audio: create resampler %d Hz to %d Hz: %w", from, to, err)
	}

	out, err := r.Process(in)
	if err != nil {
		return nil, failure.Errorf(failure.Resample, "audio: resample %d Hz to %d Hz: %w", from, to, err)
	}
	if f, ok := any(r).(flusher); ok {
		tail, err := f.Flush()
		if err != nil {
			return nil, failure.Errorf(failure.Resample, "audio: flush resampler: %w", err)
		}
		out = append(out, tail...)
	}
	return out, nil
}

// resampleDelay returns how far, in output samples, the resampler places a
// signal relative to its ideal position. It is measured once per rate pair
// by resampling a unit impulse; negative means the output leads.
func resampleDelay(from, to int) (float64, error) {
	key := [2]int{from, to}
	if d, ok := resampleDelays.Load(key); ok {
		return d.(float64), nil
	}

	margin := int(math.Ceil(resampleMarginSec * float64(from)))
	pos := 2 * margin
	in := make([]float64, 4*margin)
	in[pos] = 1
	out, err := runResampler(in, from, to)
	if err != nil {
		return 0, err
	}
	peak, ok := peakIndex(out)
	if !ok {
		return 0, failure.Errorf(failure.Resample, "audio: resample %d Hz to %d Hz: no impulse response", from, to)
	}

	d := peak - float64(pos)*float64(to)/float64(from)
	resampleDelays.Store(key, d)
	return d, nil
}

// peakIndex finds the largest sample and refines its position with a
// parabola through its neighbours.
func peakIndex(x []float64) (float64, bool) {
	best := -1
	for i, v := range x {
		if best < 0 || v > x[best] {
			best = i
		}
	}
	if best < 0 || x[best] <= 0 {
		return 0, false
	}
	if best == 0 || best == len(x)-1 {
		return float64(best), true
	}
	a, b, c := x[best-1], x[best], x[best+1]
	den := a - 2*b + c
	if den == 0 {
		return float64(best), true
	}
	return float64(best) + 0.5*(a-c)/den, true
}
