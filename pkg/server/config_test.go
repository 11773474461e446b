package server

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigOverridesDefaults(t *testing.T) {
	doc := []byte(`
listen = ":9999"
data_dir = "/var/lib/saber"
log_level = "debug"
epoch = 3

[session]
min_timeout_ms = 2000
max_timeout_ms = 20000

[master]
host = "10.0.0.1"
port = 8888
`)
	cfg, err := LoadConfig(doc)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, "/var/lib/saber", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int32(3), cfg.Epoch)
	assert.Equal(t, uint32(2000), cfg.Session.MinTimeoutMs)
	assert.Equal(t, uint32(20000), cfg.Session.MaxTimeoutMs)
	assert.False(t, cfg.isMaster())
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	cfg, err := LoadConfig([]byte(`listen = ":7777"`))
	require.NoError(t, err)
	def := DefaultConfig()
	assert.Equal(t, ":7777", cfg.Listen)
	assert.Equal(t, def.DataDir, cfg.DataDir)
	assert.Equal(t, def.Session.MinTimeoutMs, cfg.Session.MinTimeoutMs)
	assert.True(t, cfg.isMaster())
}

func TestLoadConfigRejectsBadTimeouts(t *testing.T) {
	_, err := LoadConfig([]byte("[session]\nmin_timeout_ms = 5000\nmax_timeout_ms = 100\n"))
	assert.Error(t, err)
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDefault(&buf))
	cfg, err := LoadConfig(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
