package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes gorm diagnostics and SQL traces through zap.
type GormLogger struct {
	Level                gormlogger.LogLevel
	SlowThreshold        time.Duration
	IgnoreRecordNotFound bool
}

// NewGormLogger returns a logger that reports errors and queries slower than 200ms.
func NewGormLogger() *GormLogger {
	return &GormLogger{
		Level:                gormlogger.Warn,
		SlowThreshold:        200 * time.Millisecond,
		IgnoreRecordNotFound: true,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.Level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.Level < min {
		return
	}
	fields := []zap.Field{zap.String("component", "gorm")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	FromContext(ctx).Log(level, msg, fields...)
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.Level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	var level zapcore.Level
	switch {
	case err != nil && l.Level >= gormlogger.Error && !(l.IgnoreRecordNotFound && errors.Is(err, gormlogger.ErrRecordNotFound)):
		level = zapcore.ErrorLevel
	case l.SlowThreshold != 0 && elapsed > l.SlowThreshold && l.Level >= gormlogger.Warn:
		level = zapcore.WarnLevel
		err = nil
	case l.Level >= gormlogger.Info:
		level = zapcore.DebugLevel
		err = nil
	default:
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	FromContext(ctx).Log(level, "gorm.query", fields...)
}

// ParamsFilter drops bound values so credentials and emails never reach the log.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

var _ gormlogger.Interface = (*GormLogger)(nil)
