package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the zap build mode. DevMode selects a human-readable,
// color-coded console encoder; otherwise a JSON production encoder with
// ISO8601 timestamps is used.
type Config struct {
	DevMode  bool   `env:"LOGGER_DEV_MODE" envDefault:"false"`
	LogLevel string `env:"LOGGER_LEVEL" envDefault:"info"`
}

// Logger is the sugared logging surface every component in this repository
// calls through, instead of reaching for zap directly.
type Logger interface {
	Debugf(template string, args ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Fatalf(template string, args ...interface{})
	Logger() *zap.Logger
}

type appLogger struct {
	cfg    *Config
	sugar  *zap.SugaredLogger
	plain  *zap.Logger
}

// NewAppLogger constructs an uninitialized Logger. Call InitLogger before
// using it; this split mirrors the teacher's two-phase construction so the
// logger config can be parsed from the environment before zap is built.
func NewAppLogger(cfg *Config) *appLogger {
	return &appLogger{cfg: cfg}
}

func (l *appLogger) InitLogger() {
	var zapConfig zap.Config
	if l.cfg != nil && l.cfg.DevMode {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if l.cfg != nil && l.cfg.LogLevel != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(l.cfg.LogLevel)); err == nil {
			zapConfig.Level = zap.NewAtomicLevelAt(level)
		}
	}

	built, err := zapConfig.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}

	l.plain = built
	l.sugar = built.Sugar()
}

func (l *appLogger) Debugf(template string, args ...interface{}) { l.sugar.Debugf(template, args...) }
func (l *appLogger) Info(args ...interface{})                    { l.sugar.Info(args...) }
func (l *appLogger) Infof(template string, args ...interface{})  { l.sugar.Infof(template, args...) }
func (l *appLogger) Warn(args ...interface{})                    { l.sugar.Warn(args...) }
func (l *appLogger) Warnf(template string, args ...interface{})  { l.sugar.Warnf(template, args...) }
func (l *appLogger) Error(args ...interface{})                   { l.sugar.Error(args...) }
func (l *appLogger) Errorf(template string, args ...interface{}) { l.sugar.Errorf(template, args...) }
func (l *appLogger) Fatalf(template string, args ...interface{}) { l.sugar.Fatalf(template, args...) }
func (l *appLogger) Logger() *zap.Logger                         { return l.plain }
