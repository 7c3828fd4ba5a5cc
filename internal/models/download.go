package models

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/chaz8081/vadsplit/internal/logging"
	"github.com/chaz8081/vadsplit/internal/metrics"
)

// maxArtifactSize bounds an in-memory model download.
const maxArtifactSize = 256 << 20

// Downloader fetches model files over HTTP.
type Downloader struct {
	// Client defaults to http.DefaultClient.
	Client *http.Client
	// Timeout bounds each download. Zero means no limit beyond ctx.
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func (d *Downloader) client() *http.Client {
	if d == nil || d.Client == nil {
		return http.DefaultClient
	}
	return d.Client
}

func (d *Downloader) logger() *zap.Logger {
	if d == nil {
		return zap.NewNop()
	}
	return logging.OrNop(d.Logger)
}

// fetch streams url into w and returns the byte count.
func (d *Downloader) fetch(ctx context.Context, url string, w io.Writer) (int64, error) {
	if d != nil && d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("models: download %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "vadsplit")

	resp, err := d.client().Do(req)
	if err != nil {
		return 0, fmt.Errorf("models: download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("models: download %s: HTTP %d", url, resp.StatusCode)
	}

	log := d.logger()
	log.Debug("downloading", zap.String("url", url), zap.Int64("size", resp.ContentLength))
	pw := &progressWriter{
		writer: w,
		total:  resp.ContentLength,
		label:  filepath.Base(req.URL.Path),
		log:    log,
	}
	written, err := io.Copy(pw, resp.Body)
	if d != nil {
		d.Metrics.AddDownloaded(written)
	}
	if err != nil {
		return written, fmt.Errorf("models: download %s: %w", url, err)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return written, fmt.Errorf("models: download %s: got %d of %d bytes", url, written, resp.ContentLength)
	}
	log.Debug("downloaded", zap.String("url", url), zap.Int64("bytes", written))
	return written, nil
}

// FetchBytes downloads url into memory.
func (d *Downloader) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	var buf bytes.Buffer
	lw := &limitWriter{w: &buf, n: maxArtifactSize}
	if _, err := d.fetch(ctx, url, lw); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("models: download %s: empty response", url)
	}
	return buf.Bytes(), nil
}

// FetchFile downloads url to destPath through a temp file and rename.
func (d *Downloader) FetchFile(ctx context.Context, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("models: create dir: %w", err)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("models: create temp file: %w", err)
	}

	_, err = d.fetch(ctx, url, f)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("models: move %s: %w", destPath, err)
	}
	return nil
}

// limitWriter fails once more than n bytes are written.
type limitWriter struct {
	w io.Writer
	n int64
}

func (l *limitWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > l.n {
		return 0, fmt.Errorf("artifact larger than %d bytes", maxArtifactSize)
	}
	n, err := l.w.Write(p)
	l.n -= int64(n)
	return n, err
}

// progressWriter wraps an io.Writer and logs download progress at debug
// level every 10% (or every MiB when the size is unknown).
type progressWriter struct {
	writer  io.Writer
	total   int64
	written int64
	label   string
	log     *zap.Logger
	next    int64
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)

	step := int64(1 << 20)
	if pw.total > 0 {
		step = max(pw.total/10, 1)
	}
	if pw.written >= pw.next {
		pw.next = (pw.written/step + 1) * step
		if pw.log != nil {
			fields := []zap.Field{
				zap.String("file", pw.label),
				zap.Float64("mb", float64(pw.written)/(1024*1024)),
			}
			if pw.total > 0 {
				fields = append(fields, zap.Float64("pct", float64(pw.written)/float64(pw.total)*100))
			}
			pw.log.Debug("download progress", fields...)
		}
	}
	return n, err
}
