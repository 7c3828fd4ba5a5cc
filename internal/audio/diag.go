package audio

import (
	"context"
	"math"
)

// Info describes a decoded file.
type Info struct {
	Path       string  `json:"path"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	BitDepth   int     `json:"bit_depth,omitempty"`
	Frames     int     `json:"frames"`
	Duration   float64 `json:"duration_seconds"`
}

// Probe decodes path with dec and reports its format.
func Probe(ctx context.Context, dec Decoder, path string) (Info, error) {
	if err := CheckInput(path); err != nil {
		return Info{}, err
	}
	clip, err := dec.Decode(ctx, path)
	if err != nil {
		return Info{}, err
	}
	return infoOf(path, clip), nil
}

// Convert rewrites any decodable file as 16-bit PCM WAV, keeping its rate
// and channel count. It returns the format of the written file.
func Convert(ctx context.Context, dec Decoder, in, out string) (Info, error) {
	if err := CheckInput(in); err != nil {
		return Info{}, err
	}
	clip, err := dec.Decode(ctx, in)
	if err != nil {
		return Info{}, err
	}
	if err := writePCM16(out, clip.Samples, clip.Channels, clip.SampleRate); err != nil {
		return Info{}, err
	}
	info := infoOf(out, clip)
	info.BitDepth = 16
	return info, nil
}

func infoOf(path string, clip *Clip) Info {
	info := Info{
		Path:       path,
		SampleRate: clip.SampleRate,
		Channels:   clip.Channels,
		BitDepth:   clip.BitDepth,
		Frames:     clip.Frames(),
	}
	if clip.SampleRate > 0 {
		info.Duration = float64(info.Frames) / float64(clip.SampleRate)
	}
	return info
}

// Tone generates a mono sine wave.
func Tone(freqHz, amplitude, seconds float64, rate int) *Buffer {
	n := int(math.Round(seconds * float64(rate)))
	if n < 0 {
		n = 0
	}
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(amplitude * math.Sin(2*math.Pi*freqHz*float64(i)/float64(rate)))
	}
	return &Buffer{Samples: samples, SampleRate: rate}
}
