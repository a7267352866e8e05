package xlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevelFunctions(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)))

	Debugf("hidden %d", 1)
	InfoF("listen at %s", "127.0.0.1:12345")
	Warnf("huge packet: %d", 2048)
	Errorf("accept error: %v", "boom")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "listen at 127.0.0.1:12345", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Contains(t, entries[2].Caller.File, "xlog_test.go")
}

func TestInitWritesFile(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Dir = dir
	cfg.Name = "unit"
	cfg.Console = false
	require.NoError(t, Init(cfg))

	InfoF("hello %s", "file")
	Close()
	SetLogger(newConsoleLogger(zapcore.InfoLevel))

	b, err := os.ReadFile(filepath.Join(dir, "unit.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "hello file")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("nonsense"))
}
