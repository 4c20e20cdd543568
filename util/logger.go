package util

import (
	"os"
	"runtime/debug"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// PanicSafeLogger tees log output to a file and stderr and syncs the file
// before a panic takes the process down.
type PanicSafeLogger struct {
	f *os.File
	*zap.Logger
}

var std *PanicSafeLogger

// NewPanicSafeLogger builds the process logger. f may be nil to log to stderr only.
func NewPanicSafeLogger(f *os.File, verbose bool) *PanicSafeLogger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level),
	}
	if f != nil {
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(f), level))
	}

	std = &PanicSafeLogger{
		f:      f,
		Logger: zap.New(zapcore.NewTee(cores...)),
	}
	zap.ReplaceGlobals(std.Logger)
	return std
}

func (l *PanicSafeLogger) Flush() error {
	_ = l.Logger.Sync()
	if l.f == nil {
		return nil
	}
	return l.f.Sync()
}

func FlushLogger() error {
	if std == nil {
		return nil
	}
	return std.Flush()
}

func LogPanic(err any) {
	zap.L().Error("paniced", zap.Any("err", err), zap.String("stack", string(debug.Stack())))
	_ = FlushLogger()
}
