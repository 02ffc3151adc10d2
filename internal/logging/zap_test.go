package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_LevelsAndFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := NewZapLogger(zap.New(core).Sugar())
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, "dbg", entries[0].Message)
	assert.Equal(t, zap.WarnLevel, entries[2].Level)
	assert.Equal(t, int64(4), entries[3].ContextMap()["d"])
}

func TestZapLogger_WithAddsFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := NewZapLogger(zap.New(core).Sugar()).With("component", "scheduler")

	log.Info(context.Background(), "tick", "minutes", 15)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "scheduler", entries[0].ContextMap()["component"])
}

func TestNewFileZapLogger_WritesFileAndConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	var console bytes.Buffer

	log, err := NewFileZapLogger(FileOptions{Path: path, MaxSizeMB: 1, Level: "debug", Console: &console})
	require.NoError(t, err)

	log.Info(context.Background(), "hello", "k", "v")
	require.NoError(t, log.Sync())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), `"msg":"hello"`))
	assert.True(t, strings.Contains(console.String(), "hello"))
}

func TestNewFileZapLogger_BadLevel(t *testing.T) {
	_, err := NewFileZapLogger(FileOptions{Level: "loud"})
	require.Error(t, err)
}

func TestNopLogger(t *testing.T) {
	var l Logger = NewNopLogger()
	l.With("a", 1).Info(context.Background(), "ignored")
}
