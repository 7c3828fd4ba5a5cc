package models

import (
	"go.uber.org/zap"

	"github.com/chaz8081/vadsplit/internal/config"
	"github.com/chaz8081/vadsplit/internal/vad"
)

// SileroLoader builds Silero ONNX detectors with the given detector config.
func SileroLoader(cfg config.DetectorConfig, log *zap.Logger) Loader {
	params := vad.ParamsFromConfig(cfg)
	opts := vad.SileroOptions{LibraryPath: cfg.OnnxRuntimeLib, Logger: log}
	return func(model []byte) (vad.Detector, error) {
		det, err := vad.NewSileroDetector(model, params, opts)
		if err != nil {
			return nil, err
		}
		return det, nil
	}
}

// OptionsFromConfig fills Options from the model config. Cache, Downloader
// and Load are left to the caller.
func OptionsFromConfig(cfg config.ModelConfig) Options {
	return Options{
		URL:        cfg.URL,
		ArchiveURL: cfg.ArchiveURL,
		ArchiveDir: cfg.ArchiveDir,
		FileName:   cfg.FileName,
	}
}
