// Package pipeline runs input validation, model acquisition, normalization,
// detection and extraction in order and reports a single Result.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chaz8081/vadsplit/internal/audio"
	"github.com/chaz8081/vadsplit/internal/config"
	"github.com/chaz8081/vadsplit/internal/failure"
	"github.com/chaz8081/vadsplit/internal/logging"
	"github.com/chaz8081/vadsplit/internal/metrics"
	"github.com/chaz8081/vadsplit/internal/segment"
	"github.com/chaz8081/vadsplit/internal/vad"
)

// ModelSource yields a ready detector and the name of the strategy that
// produced it.
type ModelSource interface {
	AcquireWithSource(ctx context.Context) (vad.Detector, string, error)
}

// Normalizer turns an input file into mono audio at a given rate.
type Normalizer interface {
	Normalize(ctx context.Context, path string, targetRate int) (*audio.Buffer, error)
}

// Extractor writes intervals of a buffer to files.
type Extractor interface {
	Extract(ctx context.Context, buf *audio.Buffer, intervals []vad.Interval, outputDir string) ([]segment.Segment, error)
}

// Deps are the stages a Controller drives.
type Deps struct {
	Models     ModelSource
	Normalizer Normalizer
	Extractor  Extractor
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Controller runs the segmentation pipeline.
type Controller struct {
	deps Deps
	log  *zap.Logger
}

// New returns a Controller over deps.
func New(deps Deps) *Controller {
	return &Controller{deps: deps, log: logging.OrNop(deps.Logger)}
}

// Process segments inputPath into outputDir. It never panics; every failure
// becomes an error Result whose message is the underlying error text.
func (c *Controller) Process(ctx context.Context, inputPath, outputDir string) (res Result) {
	log := c.log.With(zap.String("run_id", uuid.NewString()))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			res = Failure(fmt.Sprintf("internal error: %v", r))
			c.deps.Metrics.RecordRun(StatusError, string(failure.Internal))
		}
	}()

	log.Info("processing",
		zap.String("input", inputPath),
		zap.String("output", outputDir),
	)

	segments, err := c.run(ctx, log, inputPath, outputDir)
	if err != nil {
		kind := failure.KindOf(err)
		log.Error("pipeline failed",
			zap.String("kind", string(kind)),
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)),
		)
		c.deps.Metrics.RecordRun(StatusError, string(kind))
		return Failure(err.Error())
	}

	log.Info("pipeline complete",
		zap.Int("segments", len(segments)),
		zap.Duration("elapsed", time.Since(start)),
	)
	c.deps.Metrics.RecordRun(StatusSuccess, "")
	return Success(segments)
}

func (c *Controller) run(ctx context.Context, log *zap.Logger, inputPath, outputDir string) ([]segment.Segment, error) {
	m := c.deps.Metrics

	if err := audio.CheckInput(inputPath); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, failure.Wrap(failure.IO, fmt.Errorf("pipeline: create output dir: %w", err))
	}

	t := time.Now()
	det, source, err := c.deps.Models.AcquireWithSource(ctx)
	m.ObserveStage("acquire", t)
	if err != nil {
		return nil, failure.Wrap(failure.ModelUnavailable, err)
	}
	if closer, ok := det.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Warn("closing detector", zap.Error(err))
			}
		}()
	}
	log.Debug("detector ready", zap.String("source", source))

	t = time.Now()
	buf, err := c.deps.Normalizer.Normalize(ctx, inputPath, config.CanonicalSampleRate)
	m.ObserveStage("normalize", t)
	if err != nil {
		return nil, failure.Wrap(failure.Decode, err)
	}
	m.ObserveInput(buf.Duration())

	t = time.Now()
	intervals, err := det.Detect(ctx, buf.Samples, buf.SampleRate)
	m.ObserveStage("detect", t)
	if err != nil {
		return nil, failure.Wrap(failure.Detector, err)
	}
	log.Debug("speech detected",
		zap.Int("intervals", len(intervals)),
		zap.Duration("audio", buf.Duration()),
	)

	t = time.Now()
	segments, err := c.deps.Extractor.Extract(ctx, buf, intervals, outputDir)
	m.ObserveStage("extract", t)
	if err != nil {
		return nil, failure.Wrap(failure.Encode, err)
	}
	return segments, nil
}
