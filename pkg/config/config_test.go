package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":3000", cfg.Listen)
	assert.Equal(t, 30*time.Second, cfg.PingInterval.Std())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
listen: "127.0.0.1:4500"
pingInterval: 5s
mdns: true
traceFile: /tmp/trace.cbor
logLevel: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4500", cfg.Listen)
	assert.Equal(t, 5*time.Second, cfg.PingInterval.Std())
	assert.True(t, cfg.MDNS)
	assert.Equal(t, "/tmp/trace.cbor", cfg.TraceFile)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `listen: ":9100"`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Listen)
	assert.Equal(t, 30*time.Second, cfg.PingInterval.Std())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `pingInterval: "not a duration"`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `logLevel: loud`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `listen: ""`))
	assert.Error(t, err)
}
