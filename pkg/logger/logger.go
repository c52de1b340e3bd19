package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var InfoLogger, FatalLogger *zap.Logger

var (
	serviceName = "default"
	once        sync.Once
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// Init builds the console + rotated JSON file loggers. Safe to call more than once.
func Init(logDir string, debug bool) {
	once.Do(func() {
		level := zapcore.InfoLevel
		if debug {
			level = zapcore.DebugLevel
		}

		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		cores := []zapcore.Core{
			zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(os.Stdout), level),
		}

		if logDir != "" {
			if err := os.MkdirAll(logDir, 0o755); err == nil {
				fileCfg := zap.NewProductionEncoderConfig()
				fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
				cores = append(cores, zapcore.NewCore(
					zapcore.NewJSONEncoder(fileCfg),
					zapcore.AddSync(&lumberjack.Logger{
						Filename:   filepath.Join(logDir, "signal_bot.json"),
						MaxSize:    10,
						MaxBackups: 30,
						MaxAge:     30,
						Compress:   true,
					}),
					zapcore.InfoLevel,
				))
			}
		}

		InfoLogger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
		FatalLogger = InfoLogger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	})
}

func get() *zap.Logger {
	if InfoLogger == nil {
		return zap.NewNop()
	}
	return InfoLogger.With(zap.String("service", serviceName))
}

func Debug(format string, args ...interface{}) {
	get().Debug(fmt.Sprintf(format, args...))
}

func Info(format string, args ...interface{}) {
	get().Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	get().Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	get().Error(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	if FatalLogger == nil {
		panic(fmt.Sprintf(format, args...))
	}

	msg := fmt.Sprintf(format, args...)
	FatalLogger.With(
		zap.String("service", serviceName),
	).Fatal(msg)
}

// Sync flushes buffered file output; called on shutdown.
func Sync() {
	if InfoLogger != nil {
		_ = InfoLogger.Sync()
	}
}
