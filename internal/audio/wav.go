package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/chaz8081/vadsplit/internal/failure"
)

const wavFormatPCM = 1

// WAVDecoder decodes integer PCM WAV files (8, 16, 24 or 32 bit).
type WAVDecoder struct{}

// Decode implements Decoder.
func (WAVDecoder) Decode(ctx context.Context, path string) (*Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, failure.Wrap(failure.IO, fmt.Errorf("audio: open %s: %w", path, err))
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if err := checkPCM(dec); err != nil {
		return nil, failure.Errorf(failure.Decode, "audio: decode %s: %w", path, err)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, failure.Errorf(failure.Decode, "audio: decode %s: %w", path, err)
	}

	depth := int(dec.BitDepth)
	clip := &Clip{
		Samples:    make([]float32, len(buf.Data)),
		Channels:   int(dec.NumChans),
		SampleRate: int(dec.SampleRate),
		BitDepth:   depth,
	}
	if depth == 8 {
		// 8-bit WAV is unsigned.
		for i, v := range buf.Data {
			clip.Samples[i] = float32(v-128) / 128
		}
	} else {
		scale := float32(math.Ldexp(1, depth-1))
		for i, v := range buf.Data {
			clip.Samples[i] = float32(v) / scale
		}
	}
	// Drop a trailing partial frame from a truncated file.
	clip.Samples = clip.Samples[:clip.Frames()*clip.Channels]
	return clip, nil
}

// checkPCM reads the header and rejects anything but integer PCM.
func checkPCM(dec *wav.Decoder) error {
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return err
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return fmt.Errorf("unsupported WAV format tag %d", dec.WavAudioFormat)
	}
	if dec.NumChans < 1 {
		return fmt.Errorf("invalid channel count %d", dec.NumChans)
	}
	if dec.SampleRate == 0 {
		return fmt.Errorf("invalid sample rate 0")
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth %d", dec.BitDepth)
	}
	return nil
}

// IsPCMWAV reports whether path is a WAV file WAVDecoder can read.
func IsPCMWAV(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	return checkPCM(wav.NewDecoder(f)) == nil
}

// WAVEncoder writes 16-bit signed PCM WAV files.
type WAVEncoder struct{}

// Encode implements Encoder. The output is mono at buf.SampleRate; an
// existing file is replaced.
func (WAVEncoder) Encode(path string, buf *Buffer) error {
	if buf == nil || buf.SampleRate <= 0 {
		return failure.Errorf(failure.Encode, "audio: encode %s: invalid buffer", path)
	}
	return writePCM16(path, buf.Samples, 1, buf.SampleRate)
}

// writePCM16 writes interleaved samples as 16-bit PCM.
func writePCM16(path string, samples []float32, channels, rate int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return failure.Wrap(failure.Encode, fmt.Errorf("audio: create dir for %s: %w", path, err))
	}
	f, err := os.Create(path)
	if err != nil {
		return failure.Wrap(failure.Encode, fmt.Errorf("audio: create %s: %w", path, err))
	}

	enc := wav.NewEncoder(f, rate, 16, channels, wavFormatPCM)
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		ib.Data[i] = int(ToPCM16(s))
	}

	if err := enc.Write(ib); err != nil {
		f.Close()
		return failure.Wrap(failure.Encode, fmt.Errorf("audio: encode %s: %w", path, err))
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return failure.Wrap(failure.Encode, fmt.Errorf("audio: finalize %s: %w", path, err))
	}
	if err := f.Close(); err != nil {
		return failure.Wrap(failure.Encode, fmt.Errorf("audio: close %s: %w", path, err))
	}
	return nil
}

// ToPCM16 converts a float sample to int16 with clipping. The scale is 2^15,
// matching the decoder, so decoded 16-bit audio re-encodes bit for bit.
func ToPCM16(s float32) int16 {
	v := math.Round(float64(s) * 32768)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	case math.IsNaN(v):
		return 0
	}
	return int16(v)
}
