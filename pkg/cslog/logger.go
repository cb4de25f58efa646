package cslog

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *zap.Logger
var errorLogger *zap.Logger
var warnLogger *zap.Logger
var panicLogger *zap.Logger
var atom = zap.NewAtomicLevel()

var opts *Options

func Configure(op *Options) {
	atom.SetLevel(op.Level)
	opts = op

	loggerOpts := make([]zap.Option, 0)
	if opts.LineNum {
		loggerOpts = append(loggerOpts, zap.AddCaller(), zap.AddCallerSkip(2))
	}

	writers := make([]zapcore.WriteSyncer, 0)
	if !opts.NoStdout {
		writers = append(writers, zapcore.AddSync(os.Stdout))
	}

	logger = newLeveledLogger("info.log", atom, writers, loggerOpts...)
	warnLogger = newLeveledLogger("warn.log", zap.WarnLevel, writers, loggerOpts...)
	errorLogger = newLeveledLogger("error.log", zap.ErrorLevel, writers, loggerOpts...)
	panicLogger = newLeveledLogger("panic.log", zap.PanicLevel, writers, append(loggerOpts, zap.AddStacktrace(zapcore.PanicLevel))...)
}

func newLeveledLogger(filename string, enab zapcore.LevelEnabler, writers []zapcore.WriteSyncer, loggerOpts ...zap.Option) *zap.Logger {
	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path.Join(opts.LogDir, filename),
		MaxSize:    500, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	})
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(newEncoderConfig()),
		zapcore.NewMultiWriteSyncer(append(writers, fileWriter)...),
		enab,
	)
	return zap.New(core, loggerOpts...)
}

func Level() zapcore.Level {

	return opts.Level
}

func newEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       "time",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "linenum",
		MessageKey:    "msg",
		StacktraceKey: "stacktrace",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.LowercaseLevelEncoder,
		EncodeCaller:  zapcore.FullCallerEncoder,
		EncodeName:    zapcore.FullNameEncoder,
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format("2006-01-02T15:04:05.999999999-07:00"))
		},
		EncodeDuration: func(d time.Duration, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendInt64(int64(d) / 1000000)
		},
	}
}

func Info(msg string, fields ...zap.Field) {

	if logger == nil {
		Configure(NewOptions())
	}
	logger.Info(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {

	if logger == nil {
		Configure(NewOptions())
	}
	logger.Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {

	if warnLogger == nil {
		Configure(NewOptions())
	}
	warnLogger.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {

	if errorLogger == nil {
		Configure(NewOptions())
	}
	errorLogger.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {

	if panicLogger == nil {
		Configure(NewOptions())
	}
	panicLogger.Fatal(msg, fields...)
}

func Panic(msg string, fields ...zap.Field) {

	if panicLogger == nil {
		Configure(NewOptions())
	}
	panicLogger.Panic(msg, fields...)
}

func Sync() error {
	err := panicLogger.Sync()
	if err != nil {
		fmt.Println("panicLogger sync error", err)
	}
	err = errorLogger.Sync()
	if err != nil {
		fmt.Println("errorLogger sync error", err)
	}
	err = warnLogger.Sync()
	if err != nil {
		fmt.Println("warnLogger sync error", err)
	}
	err = logger.Sync()
	if err != nil {
		fmt.Println("logger sync error", err)
	}
	return nil
}

// Log is the component logger embedded by every component of the
// replication core.
type Log interface {
	Info(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Fatal(msg string, fields ...zap.Field)
	Panic(msg string, fields ...zap.Field)
}

type CSLog struct {
	prefix string
}

func NewCSLog(prefix string) *CSLog {

	return &CSLog{prefix: prefix}
}

func (t *CSLog) Info(msg string, fields ...zap.Field) {
	Info(t.withPrefix(msg), fields...)
}

func (t *CSLog) Debug(msg string, fields ...zap.Field) {
	Debug(t.withPrefix(msg), fields...)
}

func (t *CSLog) Warn(msg string, fields ...zap.Field) {
	Warn(t.withPrefix(msg), fields...)
}

func (t *CSLog) Error(msg string, fields ...zap.Field) {
	Error(t.withPrefix(msg), fields...)
}

func (t *CSLog) Fatal(msg string, fields ...zap.Field) {
	Fatal(t.withPrefix(msg), fields...)
}

func (t *CSLog) Panic(msg string, fields ...zap.Field) {
	Panic(t.withPrefix(msg), fields...)
}

func (t *CSLog) withPrefix(msg string) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(t.prefix)
	b.WriteString("] ")
	b.WriteString(msg)
	return b.String()
}
