package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.ServerAddress)
	assert.Equal(t, 5*time.Second, cfg.GetPollInterval())
	assert.True(t, cfg.LogRequests)
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "server_address": "http://192.168.1.44:8000",
  "poll_interval": "2s",
  "log_requests": false
}`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.44:8000", cfg.ServerAddress)
	assert.Equal(t, 2*time.Second, cfg.GetPollInterval())
	assert.False(t, cfg.LogRequests)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, "5s", cfg.PollInterval)
}

func TestLoadConfig_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SCANWORK_SERVER", "http://env-host:9000")
	t.Setenv("SCANWORK_POLL_INTERVAL", "1s")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "http://env-host:9000", cfg.ServerAddress)
	assert.Equal(t, time.Second, cfg.GetPollInterval())
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.ServerAddress = "http://host:80"
	require.NoError(t, cfg.SaveConfig(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://host:80", loaded.ServerAddress)
}

func TestGetPollInterval_Invalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollInterval = "banana"
	assert.Equal(t, 5*time.Second, cfg.GetPollInterval())
	cfg.PollInterval = "-3s"
	assert.Equal(t, 5*time.Second, cfg.GetPollInterval())
}

func TestNormalizeServerAddress(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "full url untouched", in: "http://192.168.1.44:8000", want: "http://192.168.1.44:8000"},
		{name: "https untouched", in: "https://wh.example.com", want: "https://wh.example.com"},
		{name: "trailing slash dropped", in: "http://host:80/", want: "http://host:80"},
		{name: "bare host port", in: "192.168.1.44:80", want: "http://192.168.1.44:80"},
		{name: "bare host", in: "warehouse-server", want: "http://warehouse-server"},
		{name: "whitespace trimmed", in: "  host:8000  ", want: "http://host:8000"},
		{name: "empty", in: "   ", wantErr: true},
		{name: "scheme only", in: "http://", wantErr: true},
		{name: "garbage", in: "ht!tp//::", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeServerAddress(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
