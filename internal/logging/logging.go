// Package logging builds the process logger. Logs always go to stderr so
// stdout stays reserved for the pipeline result.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a zap logger writing to stderr at the given level.
// format is "console" or "json".
func New(level, format string) (*zap.Logger, error) {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(w io.Writer, level, format string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(format) {
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("logging: unknown format %q", format)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), lvl)
	return zap.New(core, zap.ErrorOutput(zapcore.Lock(zapcore.AddSync(w)))), nil
}

// ParseLevel maps a config level name to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("logging: unknown level %q", level)
	}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Printf adapts a zap logger to printf-style logger interfaces such as
// badger.Logger.
type Printf struct {
	s *zap.SugaredLogger
}

// NewPrintf wraps l. Messages are trimmed of trailing newlines. Infof is
// demoted to debug level; libraries log routine housekeeping there.
func NewPrintf(l *zap.Logger) *Printf {
	return &Printf{s: OrNop(l).WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (p *Printf) Errorf(format string, args ...any) {
	p.s.Error(strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}

func (p *Printf) Warningf(format string, args ...any) {
	p.s.Warn(strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}

func (p *Printf) Infof(format string, args ...any) {
	p.s.Debug(strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}

func (p *Printf) Debugf(format string, args ...any) {
	p.s.Debug(strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}
