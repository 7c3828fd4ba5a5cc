package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/chaz8081/vadsplit/internal/failure"
	"github.com/chaz8081/vadsplit/internal/logging"
)

// FFmpegDecoder decodes any format ffmpeg understands by transcoding it to a
// temporary 16-bit PCM WAV at the native rate and channel count.
type FFmpegDecoder struct {
	// Path is the ffmpeg binary; empty means "ffmpeg" on PATH.
	Path   string
	Logger *zap.Logger
}

func (d *FFmpegDecoder) bin() string {
	if d.Path == "" {
		return "ffmpeg"
	}
	return d.Path
}

// Available reports whether the ffmpeg binary can be found.
func (d *FFmpegDecoder) Available() bool {
	_, err := exec.LookPath(d.bin())
	return err == nil
}

// Decode implements Decoder.
func (d *FFmpegDecoder) Decode(ctx context.Context, path string) (*Clip, error) {
	bin, err := exec.LookPath(d.bin())
	if err != nil {
		return nil, failure.Errorf(failure.Decode,
			"audio: unsupported format %s: not integer PCM WAV and ffmpeg is unavailable: %w",
			filepath.Ext(path), err)
	}

	tmp, err := os.CreateTemp("", "vadsplit-*.wav")
	if err != nil {
		return nil, failure.Wrap(failure.IO, fmt.Errorf("audio: create temp file: %w", err))
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin,
		"-nostdin", "-v", "error", "-y",
		"-i", path,
		"-vn", "-acodec", "pcm_s16le",
		"-f", "wav", tmpPath,
	)
	cmd.Stderr = &stderr

	logging.OrNop(d.Logger).Debug("transcoding with ffmpeg", zap.String("input", path))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, failure.Errorf(failure.Decode, "audio: decode %s: ffmpeg: %s", path, msg)
	}

	clip, err := WAVDecoder{}.Decode(ctx, tmpPath)
	if err != nil {
		var fe *failure.Error
		if errors.As(err, &fe) {
			return nil, failure.Errorf(failure.Decode, "audio: decode %s: %w", path, fe.Err)
		}
		return nil, err
	}
	return clip, nil
}
