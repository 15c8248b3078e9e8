// Package logging builds the zap loggers used across docseek.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Style selects the log encoder.
type Style string

const (
	StyleTerminal Style = "terminal"
	StyleJSON     Style = "json"
	StyleNoop     Style = "noop"
)

// Config holds logger settings.
type Config struct {
	Level string
	Style Style
}

// NewLogger returns a logger writing to stderr. Unknown levels fall back to info.
func NewLogger(cfg Config) *zap.Logger {
	if cfg.Style == StyleNoop {
		return zap.NewNop()
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if l, err := zapcore.ParseLevel(strings.ToLower(cfg.Level)); err == nil {
			level.SetLevel(l)
		}
	}

	var encoder zapcore.Encoder
	switch cfg.Style {
	case StyleJSON:
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	default:
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	return zap.New(core, zap.AddCaller())
}
