package log

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const envLogLevel = "GOLOG_LOG_LEVEL"

var (
	mu      sync.Mutex
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core    zapcore.Core
	loggers = make(map[string]*zap.SugaredLogger)
)

func init() {
	if lvl := os.Getenv(envLogLevel); lvl != "" {
		_ = SetLevel(lvl)
	}
	core = newCore(zapcore.Lock(os.Stderr))
}

func newCore(ws zapcore.WriteSyncer) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, level)
}

// Logger returns the named subsystem logger. All loggers share one level.
func Logger(name string) *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[name]; ok {
		return l
	}
	l := zap.New(core, zap.AddCaller()).Named(name).Sugar()
	loggers[name] = l
	return l
}

// SetLevel sets the level of every logger, e.g. "debug", "info", "warn".
func SetLevel(lvl string) error {
	return level.UnmarshalText([]byte(strings.ToLower(lvl)))
}

// SetOutput tees log output into a rotated file.
func SetOutput(file string, maxSizeMB int) {
	mu.Lock()
	defer mu.Unlock()

	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSizeMB,
		MaxBackups: 5,
		Compress:   true,
	})
	core = zapcore.NewTee(newCore(zapcore.Lock(os.Stderr)), newCore(w))

	for name := range loggers {
		*loggers[name] = *zap.New(core, zap.AddCaller()).Named(name).Sugar()
	}
}
