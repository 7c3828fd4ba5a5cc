package main

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/chaz8081/vadsplit/internal/audio"
	"github.com/chaz8081/vadsplit/internal/cache"
	"github.com/chaz8081/vadsplit/internal/config"
	"github.com/chaz8081/vadsplit/internal/logging"
	"github.com/chaz8081/vadsplit/internal/metrics"
	"github.com/chaz8081/vadsplit/internal/models"
	"github.com/chaz8081/vadsplit/internal/segment"
)

// app holds the process-wide collaborators built from config.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	store   cache.Store
}

func newApp(g *globalOptions, stderr io.Writer) (*app, error) {
	cfg, source, err := loadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	log, err := logging.NewWithWriter(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	log.Debug("config loaded", zap.String("source", source))

	store, err := cache.Open(cfg.Cache, log)
	if err != nil {
		// Remote and archive strategies still work without a persistent cache.
		log.Warn("model cache unavailable, using memory",
			zap.String("backend", cfg.Cache.Backend),
			zap.Error(err),
		)
		store = cache.NewMemory()
	}

	return &app{cfg: cfg, log: log, metrics: metrics.New(), store: store}, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults. It also reports where
// the config came from.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, defaultPath, nil
	}

	return config.Default(), "defaults", nil
}

func (a *app) modelOptions(load models.Loader) models.Options {
	o := models.OptionsFromConfig(a.cfg.Model)
	o.Cache = a.store
	o.Load = load
	o.Logger = a.log
	o.Downloader = &models.Downloader{
		Timeout: a.cfg.Model.DownloadTimeout,
		Logger:  a.log,
		Metrics: a.metrics,
	}
	return o
}

func (a *app) acquirer(load models.Loader) *models.Acquirer {
	return models.NewAcquirer(models.DefaultStrategies(a.modelOptions(load)), a.log, a.metrics)
}

func (a *app) sileroLoader() models.Loader {
	return models.SileroLoader(a.cfg.Detector, a.log)
}

func (a *app) decoder() audio.Decoder {
	return audio.NewAutoDecoder(a.cfg.Audio.FFmpegPath, a.log)
}

func (a *app) normalizer() *audio.Normalizer {
	return audio.NewNormalizer(a.decoder(), a.log)
}

func (a *app) extractor() *segment.Extractor {
	return segment.NewExtractor(segment.Options{
		CleanupOnFailure: a.cfg.Output.CleanupOnFailure,
		Logger:           a.log,
		Metrics:          a.metrics,
	})
}

// close releases the cache and flushes metrics and logs.
func (a *app) close() {
	if err := cache.Close(a.store); err != nil {
		a.log.Warn("closing model cache", zap.Error(err))
	}
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			a.log.Warn("writing metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
