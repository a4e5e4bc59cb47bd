package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option is the logging section of the configuration file.
type Option struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"json"`
}

func zapBaseEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeDuration = zapcore.SecondsDurationEncoder
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.TimeKey = "time"
	return ec
}

func zapConsoleEncoder() zapcore.Encoder {
	ec := zapBaseEncoderConfig()
	ec.ConsoleSeparator = " "
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05 PM")
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(ec)
}

// ParseLevel maps a configured level name onto a zap level. An empty name is info.
func ParseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// New builds the process logger writing to stdout.
func New(opt Option, serviceName string) (*zap.Logger, error) {
	return NewZapLogger(zapcore.AddSync(os.Stdout), opt, serviceName)
}

// NewZapLogger builds a logger writing to syncer with the configured level and
// format ("json" or "console").
func NewZapLogger(syncer zapcore.WriteSyncer, opt Option, serviceName string) (*zap.Logger, error) {
	level, err := ParseLevel(opt.Level)
	if err != nil {
		return nil, err
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(opt.Format) {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(zapBaseEncoderConfig())
	case "console":
		encoder = zapConsoleEncoder()
	default:
		return nil, fmt.Errorf("invalid log format %q", opt.Format)
	}

	logger := zap.New(zapcore.NewCore(encoder, syncer, level), zap.AddStacktrace(zap.ErrorLevel))
	if serviceName != "" {
		logger = logger.With(zap.String("service", serviceName))
	}
	return logger.With(zap.Int("pid", os.Getpid())), nil
}
