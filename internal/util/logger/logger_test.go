package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)

	log := Logger("test")
	log.Info("test message", "key", "value")

	output := buf.String()
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "key=value")
	assert.Contains(t, output, "subsystem=test")
}

func TestSetOutput_ExistingLogger(t *testing.T) {
	// 切换输出之前创建
	log := Logger("test2")

	buf := &bytes.Buffer{}
	SetOutput(buf)

	log.Info("after switch", "key", "value")
	assert.Contains(t, buf.String(), "after switch")
}

func TestSetLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)

	log := Logger("leveltest").With("peer", "abc")
	log.Debug("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	// With 派生的 Logger 同样生效
	SetLevel("leveltest", slog.LevelDebug)
	log.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "peer=abc")
}

func TestParseConfig(t *testing.T) {
	env := map[string]string{
		EnvLogLevel:  "floodsub=debug, swarm=warn ,error",
		EnvLogFormat: "JSON",
	}
	cfg := parseConfig(func(k string) string { return env[k] })

	assert.Equal(t, slog.LevelError, cfg.DefaultLevel)
	assert.Equal(t, slog.LevelDebug, cfg.LevelForSubsystem("floodsub"))
	assert.Equal(t, slog.LevelWarn, cfg.LevelForSubsystem("swarm"))
	assert.Equal(t, slog.LevelError, cfg.LevelForSubsystem("discovery"))
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.False(t, cfg.AddSource)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("Warning")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}
