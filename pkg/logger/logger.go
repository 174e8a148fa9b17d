package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel maps a level name to a LogLevel. Unknown names give INFO and false.
func ParseLevel(s string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG, true
	case "INFO":
		return INFO, true
	case "WARN", "WARNING":
		return WARN, true
	case "ERROR":
		return ERROR, true
	case "FATAL":
		return FATAL, true
	}
	return INFO, false
}

// Logger is a levelled printf-style logger backed by zap.
type Logger struct {
	level zap.AtomicLevel
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

var (
	defaultLogger *Logger
	once          sync.Once
	mu            sync.Mutex
)

type Config struct {
	Level    LogLevel
	Colorize bool
	// JSON switches the console output to JSON lines.
	JSON   bool
	Output io.Writer
	// File, when set, also writes JSON lines to a rotating file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func DefaultConfig() Config {
	return Config{
		Level:      INFO,
		Colorize:   true,
		Output:     os.Stdout,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 7,
	}
}

func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	level := zap.NewAtomicLevelAt(cfg.Level.zapLevel())

	cores := []zapcore.Core{newConsoleCore(cfg, level)}
	if cfg.File != "" {
		cores = append(cores, newFileCore(cfg, level))
	}

	base := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{level: level, base: base, sugar: base.Sugar()}
}

func newConsoleCore(cfg Config, level zap.AtomicLevel) zapcore.Core {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	if cfg.Colorize && !cfg.JSON {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var enc zapcore.Encoder
	if cfg.JSON {
		enc = zapcore.NewJSONEncoder(fileEncoderConfig())
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewCore(enc, zapcore.AddSync(cfg.Output), level)
}

func fileEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:   "message",
		LevelKey:     "level",
		TimeKey:      "time",
		CallerKey:    "caller",
		EncodeLevel:  zapcore.CapitalLevelEncoder,
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}
}

func newFileCore(cfg Config, level zap.AtomicLevel) zapcore.Core {
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	})
	return zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig()), writer, level)
}

func GetLogger() *Logger {
	once.Do(func() {
		cfg := DefaultConfig()
		if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
			if lvl, ok := ParseLevel(envLevel); ok {
				cfg.Level = lvl
			}
		}
		if file := os.Getenv("LOG_FILE"); file != "" {
			cfg.File = file
		}
		mu.Lock()
		if defaultLogger == nil {
			defaultLogger = New(cfg)
		}
		mu.Unlock()
	})
	mu.Lock()
	defer mu.Unlock()
	return defaultLogger
}

// Init replaces the default logger. Call it once at startup, before other
// packages grab GetLogger.
func Init(cfg Config) *Logger {
	l := New(cfg)
	once.Do(func() {})
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	return l
}

func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(level.zapLevel())
}

func (l *Logger) Level() LogLevel {
	switch l.level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel:
		return ERROR
	case zapcore.FatalLevel:
		return FATAL
	default:
		return INFO
	}
}

// Zap exposes the underlying zap logger for structured fields.
func (l *Logger) Zap() *zap.Logger {
	return l.base.WithOptions(zap.AddCallerSkip(-1))
}

// Named returns a child logger tagged with name.
func (l *Logger) Named(name string) *Logger {
	base := l.base.Named(name)
	return &Logger{level: l.level, base: base, sugar: base.Sugar()}
}

func (l *Logger) Sync() error {
	return l.base.Sync()
}

func (l *Logger) Debug(msg string, args ...any) { l.sugar.Debugf(msg, args...) }

func (l *Logger) Info(msg string, args ...any) { l.sugar.Infof(msg, args...) }

func (l *Logger) Warn(msg string, args ...any) { l.sugar.Warnf(msg, args...) }

func (l *Logger) Error(msg string, args ...any) { l.sugar.Errorf(msg, args...) }

// Fatal logs a message at FATAL level and exits the program
func (l *Logger) Fatal(msg string, args ...any) { l.sugar.Fatalf(msg, args...) }

func (l *Logger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }

func (l *Logger) Infof(format string, args ...any) { l.sugar.Infof(format, args...) }

func (l *Logger) Warnf(format string, args ...any) { l.sugar.Warnf(format, args...) }

func (l *Logger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }

func (l *Logger) Fatalf(format string, args ...any) { l.sugar.Fatalf(format, args...) }

// Package-level convenience functions using the default logger

func Debugf(format string, args ...any) {
	GetLogger().sugar.Debugf(format, args...)
}

func Infof(format string, args ...any) {
	GetLogger().sugar.Infof(format, args...)
}

func Warnf(format string, args ...any) {
	GetLogger().sugar.Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	GetLogger().sugar.Errorf(format, args...)
}

func Fatalf(format string, args ...any) {
	GetLogger().sugar.Fatalf(format, args...)
}

// SetLevel sets the log level for the default logger
func SetLevel(level LogLevel) {
	GetLogger().SetLevel(level)
}
