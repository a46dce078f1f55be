package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newFileWriter returns a lumberjack-rotated file inside config.Director.
func newFileWriter(config Config) *lumberjack.Logger {
	_ = os.MkdirAll(config.Director, 0755)
	return &lumberjack.Logger{
		Filename:   filepath.Join(config.Director, config.FileName),
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
		LocalTime:  true,
	}
}

// newWriteSyncer combines stdout and the rotated file according to config.
// With neither enabled, entries are discarded.
func newWriteSyncer(config Config) zapcore.WriteSyncer {
	var syncers []zapcore.WriteSyncer
	if config.LogInTerminal {
		syncers = append(syncers, zapcore.Lock(os.Stdout))
	}
	if config.Director != "" {
		syncers = append(syncers, zapcore.AddSync(newFileWriter(config)))
	}

	switch len(syncers) {
	case 0:
		return zapcore.AddSync(discard{})
	case 1:
		return syncers[0]
	default:
		return zapcore.NewMultiWriteSyncer(syncers...)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
