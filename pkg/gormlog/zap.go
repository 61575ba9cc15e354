// Package gormlog routes GORM statement logs through the request-scoped zap
// logger, so SQL lines carry the same trace_id and reference as the handler
// that issued them.
package gormlog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"

	"github.com/fatflowers/dropship/pkg/logctx"
)

const DefaultSlowThreshold = 500 * time.Millisecond

type ZapLogger struct {
	base   *zap.SugaredLogger
	config gormlogger.Config
}

// New logs every statement at Info. Use LogMode to quiet it down.
func New(base *zap.SugaredLogger) *ZapLogger {
	return &ZapLogger{base: base.With("component", "gorm"), config: gormlogger.Config{
		SlowThreshold:             DefaultSlowThreshold,
		LogLevel:                  gormlogger.Info,
		IgnoreRecordNotFoundError: true,
	}}
}

// ForEnv keeps statement logging for dev and only warnings in prod.
func ForEnv(base *zap.SugaredLogger, prod bool) gormlogger.Interface {
	l := New(base)
	if prod {
		return l.LogMode(gormlogger.Warn)
	}
	return l
}

func (z *ZapLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cfg := z.config
	cfg.LogLevel = level
	return &ZapLogger{base: z.base, config: cfg}
}

func (z *ZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if z.config.LogLevel >= gormlogger.Info {
		logctx.FromCtx(ctx, z.base).Infow(msg, "args", data)
	}
}

func (z *ZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if z.config.LogLevel >= gormlogger.Warn {
		logctx.FromCtx(ctx, z.base).Warnw(msg, "args", data)
	}
}

func (z *ZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if z.config.LogLevel >= gormlogger.Error {
		logctx.FromCtx(ctx, z.base).Errorw(msg, "args", data)
	}
}

func (z *ZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if z.config.LogLevel == gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	notFound := errors.Is(err, gorm.ErrRecordNotFound)
	switch {
	case err != nil && !(notFound && z.config.IgnoreRecordNotFoundError) && z.config.LogLevel >= gormlogger.Error:
		sql, rows := fc()
		logctx.FromCtx(ctx, z.base).Errorw("gorm_error", z.fields(sql, rows, elapsed, "err", err)...)
	case z.config.SlowThreshold > 0 && elapsed > z.config.SlowThreshold && z.config.LogLevel >= gormlogger.Warn:
		sql, rows := fc()
		logctx.FromCtx(ctx, z.base).Warnw("gorm_slow", z.fields(sql, rows, elapsed, "threshold_ms", z.config.SlowThreshold.Milliseconds())...)
	case z.config.LogLevel >= gormlogger.Info:
		sql, rows := fc()
		logctx.FromCtx(ctx, z.base).Infow("gorm", z.fields(sql, rows, elapsed)...)
	}
}

func (z *ZapLogger) fields(sql string, rows int64, elapsed time.Duration, extra ...interface{}) []interface{} {
	out := []interface{}{
		"sql", sql,
		"rows", rows,
		"elapsed_ms", elapsed.Milliseconds(),
		"caller", shortCaller(utils.FileWithLineNum()),
	}
	return append(out, extra...)
}

// shortCaller trims an absolute build path to the repo-relative file:line.
func shortCaller(s string) string {
	if s == "" {
		return s
	}
	path, line := s, ""
	if i := strings.LastIndex(s, ":"); i >= 0 {
		path, line = s[:i], s[i:]
	}
	path = filepath.ToSlash(path)
	for _, marker := range []string{"/internal/", "/pkg/", "/cmd/"} {
		if i := strings.Index(path, marker); i >= 0 {
			return path[i+1:] + line
		}
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) > 3 {
		parts = parts[len(parts)-3:]
	}
	return strings.Join(parts, "/") + line
}
