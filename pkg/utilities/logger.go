package utilities

import (
	"io"
	"os"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level string
	Dev   bool
	// File enables a rotated log file next to stdout when non-empty.
	File     string
	MaxAge   time.Duration
	Rotation time.Duration
	// Stderr sends console output to stderr instead of stdout.
	Stderr bool
}

// ConfigFromEnv reads minimal config from env vars.
func ConfigFromEnv() Config {
	dev := os.Getenv("LOG_DEV") == "1"
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		if dev {
			lvl = "debug"
		} else {
			lvl = "info"
		}
	}
	cfg := Config{Level: lvl, Dev: dev, File: os.Getenv("LOG_FILE"), MaxAge: 7 * 24 * time.Hour, Rotation: 24 * time.Hour}
	if d, err := time.ParseDuration(os.Getenv("LOG_MAX_AGE")); err == nil && d > 0 {
		cfg.MaxAge = d
	}
	if d, err := time.ParseDuration(os.Getenv("LOG_ROTATION")); err == nil && d > 0 {
		cfg.Rotation = d
	}
	return cfg
}

func levelFromString(l string) zapcore.Level {
	switch l {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init initializes and returns a *zap.Logger
func Init(cfg Config) (*zap.Logger, error) {
	lvl := levelFromString(cfg.Level)
	if cfg.Dev && cfg.File == "" {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		return c.Build()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var out io.Writer = os.Stdout
	if cfg.Stderr {
		out = os.Stderr
	}
	if cfg.File != "" {
		rl, err := rotatingWriter(cfg)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(out, rl)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(out), lvl)
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	return zap.New(core, opts...), nil
}

// rotatingWriter keeps a "<file>.YYYYMMDD" series with a stable symlink at <file>.
func rotatingWriter(cfg Config) (*rotatelogs.RotateLogs, error) {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 7 * 24 * time.Hour
	}
	if cfg.Rotation <= 0 {
		cfg.Rotation = 24 * time.Hour
	}
	return rotatelogs.New(
		cfg.File+".%Y%m%d",
		rotatelogs.WithLinkName(cfg.File),
		rotatelogs.WithMaxAge(cfg.MaxAge),
		rotatelogs.WithRotationTime(cfg.Rotation),
	)
}
