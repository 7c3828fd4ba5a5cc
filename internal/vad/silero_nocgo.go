//go:build !cgo

package vad

import (
	"errors"

	"go.uber.org/zap"
)

// SileroOptions configures NewSilero.
type SileroOptions struct {
	LibraryPath string
	Logger      *zap.Logger
}

// NewSileroDetector always fails: ONNX Runtime is loaded through cgo.
func NewSileroDetector(model []byte, params Params, opts SileroOptions) (*FrameDetector, error) {
	return nil, errors.New("vad: silero detector requires a cgo build")
}
