// Package models acquires the VAD model through an ordered list of
// strategies: remote fetch, cache only, then a full source archive.
package models

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chaz8081/vadsplit/internal/failure"
	"github.com/chaz8081/vadsplit/internal/logging"
	"github.com/chaz8081/vadsplit/internal/metrics"
	"github.com/chaz8081/vadsplit/internal/vad"
)

// Loader turns model bytes into a ready detector.
type Loader func(model []byte) (vad.Detector, error)

// Strategy is one way of obtaining a detector.
type Strategy interface {
	Name() string
	Acquire(ctx context.Context) (vad.Detector, error)
}

// Attempt records one failed strategy.
type Attempt struct {
	Strategy string
	Err      error
}

// UnavailableError means every strategy failed.
type UnavailableError struct {
	Attempts []Attempt
}

func (e *UnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return "models: model unavailable: no acquisition strategies configured"
	}
	last := e.Attempts[len(e.Attempts)-1]
	return fmt.Sprintf("models: model unavailable after %d attempts, last (%s): %v",
		len(e.Attempts), last.Strategy, last.Err)
}

// Unwrap exposes every attempt error to errors.Is and errors.As.
func (e *UnavailableError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Acquirer runs strategies in order until one yields a detector.
type Acquirer struct {
	strategies []Strategy
	log        *zap.Logger
	metrics    *metrics.Metrics
}

// NewAcquirer returns an Acquirer over strategies, tried in the given order.
func NewAcquirer(strategies []Strategy, log *zap.Logger, m *metrics.Metrics) *Acquirer {
	return &Acquirer{strategies: strategies, log: logging.OrNop(log), metrics: m}
}

// Acquire returns a detector from the first strategy that succeeds. Failed
// strategies are logged and collected; only when all fail is an error
// returned, tagged failure.ModelUnavailable.
func (a *Acquirer) Acquire(ctx context.Context) (vad.Detector, error) {
	det, _, err := a.AcquireWithSource(ctx)
	return det, err
}

// AcquireWithSource is Acquire that also reports the winning strategy name.
func (a *Acquirer) AcquireWithSource(ctx context.Context) (vad.Detector, string, error) {
	var attempts []Attempt
	for _, s := range a.strategies {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, Attempt{Strategy: s.Name(), Err: err})
			break
		}

		det, err := s.Acquire(ctx)
		if err == nil && det == nil {
			err = errors.New("models: strategy returned no detector")
		}
		a.metrics.RecordAttempt(s.Name(), err)
		if err != nil {
			a.log.Warn("model acquisition strategy failed",
				zap.String("strategy", s.Name()),
				zap.Error(err),
			)
			attempts = append(attempts, Attempt{Strategy: s.Name(), Err: err})
			continue
		}

		a.log.Info("model acquired", zap.String("strategy", s.Name()))
		return det, s.Name(), nil
	}
	// Not failure.Wrap: attempt errors may carry their own kind.
	return nil, "", &failure.Error{Kind: failure.ModelUnavailable, Err: &UnavailableError{Attempts: attempts}}
}
