package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SlowQueryThreshold marks a query as slow in the SQL log.
const SlowQueryThreshold = 200 * time.Millisecond

// GormLogger routes gorm's SQL log through zap.
type GormLogger struct {
	zap      *zap.Logger
	LogLevel gormlogger.LogLevel
}

// NewGormLogger wraps l for use as gorm.Config.Logger.
func NewGormLogger(l *Logger, level gormlogger.LogLevel) *GormLogger {
	return &GormLogger{zap: l.Zap().Named("sql"), LogLevel: level}
}

func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *g
	cp.LogLevel = level
	return &cp
}

func (g *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if g.LogLevel >= gormlogger.Info {
		g.zap.Sugar().Infof(msg, data...)
	}
}

func (g *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if g.LogLevel >= gormlogger.Warn {
		g.zap.Sugar().Warnf(msg, data...)
	}
}

func (g *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if g.LogLevel >= gormlogger.Error {
		g.zap.Sugar().Errorf(msg, data...)
	}
}

func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if g.LogLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}

	switch {
	case err != nil && g.LogLevel >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		g.zap.Error("query failed", append(fields, zap.Error(err))...)
	case elapsed > SlowQueryThreshold && g.LogLevel >= gormlogger.Warn:
		g.zap.Warn("slow query", fields...)
	case g.LogLevel >= gormlogger.Info:
		g.zap.Debug("query", fields...)
	}
}
