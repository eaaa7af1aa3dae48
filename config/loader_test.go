package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamrelay/errors"
)

var envKeys = []string{
	EnvDeviceAddr, EnvWSHost, EnvWSPort,
	"STREAMRELAY_BUS_URL", "STREAMRELAY_SUBJECT_PREFIX", "STREAMRELAY_POLL_TIMEOUT",
	"STREAMRELAY_CATALOG", "STREAMRELAY_WS_PATH", "STREAMRELAY_SEND_INTERVAL", "STREAMRELAY_CHANNELS",
}

// clearEnv blanks every variable the loader reads; empty values are ignored
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	clearEnv(t)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile_YAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "relay.yaml", `
bus:
  url: nats://10.0.0.5:4222
  poll_timeout: 250ms
listen:
  port: 9000
relay:
  send_interval: 100ms
channels: [carState, radarState]
`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://10.0.0.5:4222", cfg.Bus.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Bus.PollTimeout)
	assert.Equal(t, DefaultSubjectPrefix, cfg.Bus.SubjectPrefix, "absent keys keep defaults")
	assert.Equal(t, 9000, cfg.Listen.Port)
	assert.Equal(t, DefaultListenHost, cfg.Listen.Host)
	assert.Equal(t, 100*time.Millisecond, cfg.Relay.SendInterval)
	assert.Equal(t, DefaultWriteTimeout, cfg.Relay.WriteTimeout)
	assert.Equal(t, []string{"carState", "radarState"}, cfg.Channels)
}

func TestLoadFile_JSON(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "relay.json", `{
  "listen": {"host": "127.0.0.1", "path": "/ws"},
  "relay": {"ping_interval": "10s", "read_timeout": "25s"}
}`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Listen.Host)
	assert.Equal(t, "/ws", cfg.Listen.Path)
	assert.Equal(t, 10*time.Second, cfg.Relay.PingInterval)
	assert.Equal(t, 25*time.Second, cfg.Relay.ReadTimeout)
	assert.Equal(t, DefaultChannels, cfg.Channels)
}

func TestLoad_LayersOverride(t *testing.T) {
	clearEnv(t)
	base := writeFile(t, "base.yaml", "listen:\n  port: 9000\nchannels: [carState]\n")
	override := writeFile(t, "override.yaml", "listen:\n  port: 9100\n")

	l := NewLoader()
	l.AddLayer(base)
	l.AddLayer(override)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Listen.Port)
	assert.Equal(t, []string{"carState"}, cfg.Channels)
}

func TestLoadFile_EmptyFile(t *testing.T) {
	clearEnv(t)
	cfg, err := NewLoader().LoadFile(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile_SchemaRejects(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
	}{
		{"unknown top-level key", "nats:\n  url: nats://x:4222\n"},
		{"unknown nested key", "listen:\n  tls: true\n"},
		{"port out of range", "listen:\n  port: 70000\n"},
		{"port as string", "listen:\n  port: \"8867\"\n"},
		{"bad duration", "relay:\n  send_interval: fast\n"},
		{"numeric duration", "relay:\n  send_interval: 50\n"},
		{"empty channel list", "channels: []\n"},
		{"channel not a string", "channels: [1]\n"},
		{"relative path", "listen:\n  path: ws\n"},
		{"wildcard prefix", "bus:\n  subject_prefix: \"bus.*\"\n"},
		{"not a mapping", "- just\n- a list\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadFile(writeFile(t, "bad.yaml", tt.content))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestLoadFile_BadPaths(t *testing.T) {
	clearEnv(t)

	_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewLoader().LoadFile(writeFile(t, "relay.toml", "x = 1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file type")

	_, err = NewLoader().LoadFile(t.TempDir() + "/dir.yaml/")
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDeviceAddr, "192.168.63.1")
	t.Setenv(EnvWSHost, "127.0.0.1")
	t.Setenv(EnvWSPort, "9999")
	t.Setenv("STREAMRELAY_SUBJECT_PREFIX", "device")
	t.Setenv("STREAMRELAY_POLL_TIMEOUT", "20ms")
	t.Setenv("STREAMRELAY_SEND_INTERVAL", "100ms")
	t.Setenv("STREAMRELAY_WS_PATH", "/stream")
	t.Setenv("STREAMRELAY_CHANNELS", " carState, ,radarState ")
	t.Setenv("STREAMRELAY_CATALOG", "/etc/streamrelay/services.yaml")

	path := writeFile(t, "relay.yaml", "listen:\n  port: 9000\n")
	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://192.168.63.1:4222", cfg.Bus.URL)
	assert.Equal(t, "device", cfg.Bus.SubjectPrefix)
	assert.Equal(t, 20*time.Millisecond, cfg.Bus.PollTimeout)
	assert.Equal(t, "/etc/streamrelay/services.yaml", cfg.Bus.CatalogPath)
	assert.Equal(t, "127.0.0.1", cfg.Listen.Host)
	assert.Equal(t, 9999, cfg.Listen.Port, "environment wins over the file")
	assert.Equal(t, "/stream", cfg.Listen.Path)
	assert.Equal(t, 100*time.Millisecond, cfg.Relay.SendInterval)
	assert.Equal(t, []string{"carState", "radarState"}, cfg.Channels)
}

func TestLoad_BusURLWinsOverDeviceAddr(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDeviceAddr, "10.0.0.1")
	t.Setenv("STREAMRELAY_BUS_URL", "tls://bus.example:4443")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "tls://bus.example:4443", cfg.Bus.URL)
}

func TestLoad_BadEnv(t *testing.T) {
	tests := map[string]string{
		EnvWSPort:                   "eighty",
		"STREAMRELAY_SEND_INTERVAL": "soon",
		"STREAMRELAY_POLL_TIMEOUT":  "1 second",
	}

	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)

			_, err := NewLoader().Load()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_ValidationToggle(t *testing.T) {
	clearEnv(t)
	t.Setenv("STREAMRELAY_SEND_INTERVAL", "0s")

	_, err := NewLoader().Load()
	require.Error(t, err)

	l := NewLoader()
	l.EnableValidation(false)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.Relay.SendInterval)
}

func TestBusURLFromAddr(t *testing.T) {
	tests := map[string]string{
		"127.0.0.1":            "nats://127.0.0.1:4222",
		"device.local":         "nats://device.local:4222",
		"10.0.0.2:4333":        "nats://10.0.0.2:4333",
		"::1":                  "nats://[::1]:4222",
		"nats://10.0.0.2:4222": "nats://10.0.0.2:4222",
		" tls://secure:4443 ":  "tls://secure:4443",
	}
	for in, want := range tests {
		assert.Equal(t, want, BusURLFromAddr(in), in)
	}
}
