package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Global variable, a no-op logger until Init is called
var zapLog = zap.NewNop()

func Init(debug bool) {
	var config zap.Config
	var encoderConf zapcore.EncoderConfig

	if debug {
		config = zap.NewDevelopmentConfig()
		encoderConf = zap.NewDevelopmentEncoderConfig()

		// Use a human readable time
		encoderConf.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewProductionConfig()
		encoderConf = zap.NewProductionEncoderConfig()

		// Use unix timestamp millis for production
		encoderConf.EncodeTime = zapcore.EpochMillisTimeEncoder

		// The tool output is logged on failures, stack traces only add noise there
		config.DisableStacktrace = true
	}

	// Assign the config
	config.EncoderConfig = encoderConf

	// Build the logger and skip one caller as thats our own log package
	logger, err := config.Build(zap.AddCallerSkip(1))

	// Panic if we cant log correctly
	if err != nil {
		panic(err)
	}

	zapLog = logger
}

// Replace swaps the package logger, the returned func restores the previous one.
// Tests use this to attach an observer core.
func Replace(logger *zap.Logger) func() {
	prev := zapLog
	zapLog = logger.WithOptions(zap.AddCallerSkip(1))
	return func() {
		zapLog = prev
	}
}

// Sync flushes buffered entries, call it before exiting
func Sync() error {
	return zapLog.Sync()
}

func Debug(message string, fields ...zap.Field) {
	zapLog.Debug(message, fields...)
}

func Info(message string, fields ...zap.Field) {
	zapLog.Info(message, fields...)
}

func Warn(message string, fields ...zap.Field) {
	zapLog.Warn(message, fields...)
}

func Error(message string, fields ...zap.Field) {
	zapLog.Error(message, fields...)
}

func Fatal(message string, fields ...zap.Field) {
	zapLog.Fatal(message, fields...)
}

func Panic(message string, fields ...zap.Field) {
	zapLog.Panic(message, fields...)
}
