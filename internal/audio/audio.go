// Package audio decodes input files, normalizes them to mono at a target
// rate, and writes 16-bit PCM WAV files.
package audio

import (
	"context"
	"time"
)

// Buffer is mono float32 audio at a declared sample rate. Samples are
// nominally in [-1, 1].
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the buffer length as time.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Clip is decoded audio at its native rate with interleaved channels.
type Clip struct {
	Samples    []float32
	Channels   int
	SampleRate int
	// BitDepth is the source sample width, 0 when unknown.
	BitDepth int
}

// Frames returns the number of sample frames.
func (c *Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Channel de-interleaves channel i into a new slice. An out-of-range
// channel yields nil.
func (c *Clip) Channel(i int) []float32 {
	if i < 0 || i >= c.Channels {
		return nil
	}
	out := make([]float32, c.Frames())
	for f := range out {
		out[f] = c.Samples[f*c.Channels+i]
	}
	return out
}

// Decoder reads a whole audio file.
type Decoder interface {
	Decode(ctx context.Context, path string) (*Clip, error)
}

// Encoder writes a mono buffer to a file.
type Encoder interface {
	Encode(path string, buf *Buffer) error
}
