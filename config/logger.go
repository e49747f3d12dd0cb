package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/hotswap/errors"
)

func parseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return lvl, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log_level")
	}
	return lvl, nil
}

// NewLogger builds the process logger. With a log file every entry goes
// there; otherwise entries go to stderr, unless the terminal belongs to
// the TUI, in which case logging is off.
func NewLogger(c Config, tui bool) (*zap.Logger, error) {
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	var out string
	switch {
	case c.LogFile != "":
		out = c.LogFile
	case tui:
		return zap.NewNop(), nil
	default:
		out = "stderr"
	}

	zc := zap.NewDevelopmentConfig()
	zc.Development = false
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{out}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.DisableStacktrace = true
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if !tui && c.LogFile == "" {
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	l, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "build logger")
	}
	return l, nil
}
