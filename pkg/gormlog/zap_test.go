package gormlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func observed(level zapcore.Level) (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core).Sugar(), logs
}

func stmt() (string, int64) { return "SELECT 1", 1 }

func TestTrace_Levels(t *testing.T) {
	base, logs := observed(zapcore.DebugLevel)
	l := New(base)
	ctx := context.Background()

	l.Trace(ctx, time.Now(), stmt, nil)
	l.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	l.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	l.Trace(ctx, time.Now(), stmt, errors.New("deadlock"))

	msgs := make([]string, 0, logs.Len())
	for _, e := range logs.All() {
		msgs = append(msgs, e.Message)
	}
	// a not-found lookup is logged as a plain statement
	require.Equal(t, []string{"gorm", "gorm", "gorm_slow", "gorm_error"}, msgs)
	require.Equal(t, "gorm", logs.All()[0].ContextMap()["component"])
}

func TestForEnv_ProdOnlyWarns(t *testing.T) {
	base, logs := observed(zapcore.DebugLevel)
	l := ForEnv(base, true)
	l.Trace(context.Background(), time.Now(), stmt, nil)
	require.Equal(t, 0, logs.Len())

	l.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), stmt, errors.New("boom"))
	require.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now(), stmt, errors.New("boom"))
	require.Equal(t, 1, logs.Len())
}

func TestShortCaller(t *testing.T) {
	require.Equal(t, "internal/platform/db/db.go:38", shortCaller("/Users/alex/repo/internal/platform/db/db.go:38"))
	require.Equal(t, "pkg/x/y.go:12", shortCaller(`C:/repo/project/pkg/x/y.go:12`))
	require.Equal(t, "a/b/c.go:1", shortCaller("/very/deep/a/b/c.go:1"))
	require.Equal(t, "", shortCaller(""))
}
