package audio

import (
	"context"

	"go.uber.org/zap"

	"github.com/chaz8081/vadsplit/internal/logging"
)

// AutoDecoder reads integer PCM WAV directly and hands everything else to
// ffmpeg.
type AutoDecoder struct {
	WAV    Decoder
	Other  Decoder
	Logger *zap.Logger
}

// NewAutoDecoder returns an AutoDecoder using ffmpegPath for non-WAV input.
func NewAutoDecoder(ffmpegPath string, log *zap.Logger) *AutoDecoder {
	return &AutoDecoder{
		WAV:    WAVDecoder{},
		Other:  &FFmpegDecoder{Path: ffmpegPath, Logger: log},
		Logger: log,
	}
}

// Decode implements Decoder.
func (d *AutoDecoder) Decode(ctx context.Context, path string) (*Clip, error) {
	if IsPCMWAV(path) {
		logging.OrNop(d.Logger).Debug("decoding PCM WAV", zap.String("path", path))
		return d.WAV.Decode(ctx, path)
	}
	return d.Other.Decode(ctx, path)
}
