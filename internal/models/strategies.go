package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/chaz8081/vadsplit/internal/cache"
	"github.com/chaz8081/vadsplit/internal/logging"
	"github.com/chaz8081/vadsplit/internal/vad"
)

// Options wires the default strategies.
type Options struct {
	// URL is the direct model download. Empty disables the remote strategy.
	URL string
	// ArchiveURL is a zip of the model repository. Empty disables the
	// archive strategy.
	ArchiveURL string
	// ArchiveDir is the folder inside the archive holding .onnx files.
	ArchiveDir string
	FileName   string

	Cache      cache.Store
	Load       Loader
	Downloader *Downloader
	Logger     *zap.Logger
}

// Key returns the cache key for the configured model.
func (o Options) Key() string {
	return CacheKey(o.URL, o.FileName)
}

func (o Options) log() *zap.Logger {
	return logging.OrNop(o.Logger)
}

// DefaultStrategies returns remote, cache and archive, in that order.
func DefaultStrategies(o Options) []Strategy {
	var s []Strategy
	if o.URL != "" {
		s = append(s, &remoteStrategy{o: o})
	}
	s = append(s, &cacheStrategy{o: o})
	if o.ArchiveURL != "" {
		s = append(s, &archiveStrategy{o: o})
	}
	return s
}

// remoteStrategy uses a loadable cached copy, else downloads the model.
type remoteStrategy struct{ o Options }

func (s *remoteStrategy) Name() string { return "remote" }

func (s *remoteStrategy) Acquire(ctx context.Context) (vad.Detector, error) {
	key := s.o.Key()
	if data, err := s.o.Cache.Get(ctx, key); err == nil {
		det, err := s.o.Load(data)
		if err == nil {
			s.o.log().Debug("using cached model", zap.String("key", key))
			return det, nil
		}
		s.o.log().Warn("cached model failed to load, downloading again",
			zap.String("key", key), zap.Error(err))
		if err := cache.Delete(ctx, s.o.Cache, key); err != nil {
			s.o.log().Warn("could not evict cached model", zap.String("key", key), zap.Error(err))
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		s.o.log().Warn("model cache read failed", zap.String("key", key), zap.Error(err))
	}

	data, err := s.o.Downloader.FetchBytes(ctx, s.o.URL)
	if err != nil {
		return nil, err
	}
	det, err := s.o.Load(data)
	if err != nil {
		return nil, fmt.Errorf("models: load downloaded model: %w", err)
	}
	if err := s.o.Cache.Put(ctx, key, data); err != nil {
		s.o.log().Warn("could not cache downloaded model", zap.String("key", key), zap.Error(err))
	}
	return det, nil
}

// cacheStrategy never touches the network.
type cacheStrategy struct{ o Options }

func (s *cacheStrategy) Name() string { return "cache" }

func (s *cacheStrategy) Acquire(ctx context.Context) (vad.Detector, error) {
	key := s.o.Key()
	data, err := s.o.Cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, fmt.Errorf("models: %s not in cache", key)
		}
		return nil, err
	}
	det, err := s.o.Load(data)
	if err != nil {
		return nil, fmt.Errorf("models: load cached model %s: %w", key, err)
	}
	return det, nil
}

// archiveStrategy downloads the repository archive and unpacks its models
// into the cache.
type archiveStrategy struct{ o Options }

func (s *archiveStrategy) Name() string { return "archive" }

func (s *archiveStrategy) Acquire(ctx context.Context) (vad.Detector, error) {
	tmpDir, err := os.MkdirTemp("", "vadsplit-archive-*")
	if err != nil {
		return nil, fmt.Errorf("models: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	zipPath := filepath.Join(tmpDir, "archive.zip")
	if err := s.o.Downloader.FetchFile(ctx, s.o.ArchiveURL, zipPath); err != nil {
		return nil, err
	}

	keys, err := ExtractModels(ctx, zipPath, s.o.ArchiveDir, s.o.Cache)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("models: no .onnx files under %q in %s", s.o.ArchiveDir, s.o.ArchiveURL)
	}
	s.o.log().Info("unpacked models from archive", zap.Strings("keys", keys))

	data, err := s.o.Cache.Get(ctx, s.o.FileName)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, fmt.Errorf("models: archive has no %s", s.o.FileName)
		}
		return nil, err
	}
	det, err := s.o.Load(data)
	if err != nil {
		return nil, fmt.Errorf("models: load archived model: %w", err)
	}
	// The cache strategy reads the configured model's key, which differs
	// from the archive file name for a non-default URL.
	if key := s.o.Key(); key != s.o.FileName {
		if err := s.o.Cache.Put(ctx, key, data); err != nil {
			s.o.log().Warn("could not cache archived model", zap.String("key", key), zap.Error(err))
		}
	}
	return det, nil
}

// ValidateOnly accepts any non-empty artifact without building a detector.
// It lets the cache be warmed on hosts without ONNX Runtime.
func ValidateOnly(model []byte) (vad.Detector, error) {
	if len(model) == 0 {
		return nil, errors.New("models: empty artifact")
	}
	return nopDetector{}, nil
}

type nopDetector struct{}

func (nopDetector) Detect(context.Context, []float32, int) ([]vad.Interval, error) {
	return []vad.Interval{}, nil
}
