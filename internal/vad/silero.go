//go:build cgo

package vad

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/chaz8081/vadsplit/internal/logging"
)

const (
	sileroWindow  = 512
	sileroContext = 64
)

var (
	ortOnce sync.Once
	ortErr  error
)

// initRuntime loads the ONNX Runtime shared library once per process.
func initRuntime(libPath string) error {
	ortOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			ortErr = fmt.Errorf("vad: initialize onnxruntime: %w", err)
		}
	})
	return ortErr
}

// SileroOptions configures NewSilero.
type SileroOptions struct {
	// LibraryPath points at libonnxruntime. Empty uses the platform default.
	LibraryPath string
	Logger      *zap.Logger
}

// Silero scores 512-sample windows at 16 kHz with the Silero VAD v5 model.
// It is safe for concurrent use; calls are serialised.
type Silero struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	state   *ort.Tensor[float32]
	sr      *ort.Tensor[int64]
	output  *ort.Tensor[float32]
	stateN  *ort.Tensor[float32]
	log     *zap.Logger
}

// NewSilero builds an inference session from the raw .onnx bytes.
func NewSilero(model []byte, opts SileroOptions) (*Silero, error) {
	if len(model) == 0 {
		return nil, fmt.Errorf("vad: empty model")
	}
	if err := initRuntime(opts.LibraryPath); err != nil {
		return nil, err
	}

	s := &Silero{log: logging.OrNop(opts.Logger)}
	var err error
	if s.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, sileroContext+sileroWindow)); err != nil {
		return nil, fmt.Errorf("vad: allocate input: %w", err)
	}
	if s.state, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128)); err != nil {
		s.Close()
		return nil, fmt.Errorf("vad: allocate state: %w", err)
	}
	if s.sr, err = ort.NewTensor(ort.NewShape(1), []int64{SampleRate}); err != nil {
		s.Close()
		return nil, fmt.Errorf("vad: allocate sr: %w", err)
	}
	if s.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		s.Close()
		return nil, fmt.Errorf("vad: allocate output: %w", err)
	}
	if s.stateN, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128)); err != nil {
		s.Close()
		return nil, fmt.Errorf("vad: allocate stateN: %w", err)
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("vad: session options: %w", err)
	}
	defer sessOpts.Destroy()
	if err := sessOpts.SetIntraOpNumThreads(1); err != nil {
		s.Close()
		return nil, fmt.Errorf("vad: session options: %w", err)
	}
	if err := sessOpts.SetInterOpNumThreads(1); err != nil {
		s.Close()
		return nil, fmt.Errorf("vad: session options: %w", err)
	}

	s.session, err = ort.NewAdvancedSessionWithONNXData(model,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{s.input, s.state, s.sr},
		[]ort.Value{s.output, s.stateN},
		sessOpts,
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("vad: load model: %w", err)
	}
	return s, nil
}

// WindowSize implements Prober.
func (s *Silero) WindowSize() int { return sileroWindow }

// Probabilities implements Prober.
func (s *Silero) Probabilities(ctx context.Context, samples []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, fmt.Errorf("vad: detector closed")
	}

	in := s.input.GetData()
	state := s.state.GetData()
	clear(in)
	clear(state)

	windows := (len(samples) + sileroWindow - 1) / sileroWindow
	probs := make([]float32, 0, windows)
	for w := 0; w < windows; w++ {
		if w%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		// in holds the previous window's tail as context, then the new window.
		copy(in[:sileroContext], in[len(in)-sileroContext:])
		chunk := samples[w*sileroWindow : min((w+1)*sileroWindow, len(samples))]
		n := copy(in[sileroContext:], chunk)
		clear(in[sileroContext+n:])

		if err := s.session.Run(); err != nil {
			return nil, fmt.Errorf("vad: run window %d: %w", w, err)
		}
		probs = append(probs, s.output.GetData()[0])
		copy(state, s.stateN.GetData())
	}
	s.log.Debug("silero scored", zap.Int("windows", windows))
	return probs, nil
}

// Close releases the session and tensors.
func (s *Silero) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if s.session != nil {
		keep(s.session.Destroy())
		s.session = nil
	}
	if s.input != nil {
		keep(s.input.Destroy())
	}
	if s.state != nil {
		keep(s.state.Destroy())
	}
	if s.sr != nil {
		keep(s.sr.Destroy())
	}
	if s.output != nil {
		keep(s.output.Destroy())
	}
	if s.stateN != nil {
		keep(s.stateN.Destroy())
	}
	s.input, s.state, s.sr, s.output, s.stateN = nil, nil, nil, nil, nil
	return first
}

// NewSileroDetector loads model and wraps it in a FrameDetector.
func NewSileroDetector(model []byte, params Params, opts SileroOptions) (*FrameDetector, error) {
	s, err := NewSilero(model, opts)
	if err != nil {
		return nil, err
	}
	return NewFrameDetector(s, params, opts.Logger), nil
}

var _ Prober = (*Silero)(nil)
