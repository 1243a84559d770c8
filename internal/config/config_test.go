// Package config_test tests the configuration loading for the voicechat front end.
package config_test

import (
	"testing"
	"time"

	"github.com/book-expert/voicechat-web/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[backend]
base_url = "http://backend:8000"
timeout_seconds = 45

[server]
addr = ":9000"
cookie_secret = "s3cret"
session_name = "vc"
session_ttl_minutes = 5

[preview]
store = "nats"
max_height = 256
max_upload_mb = 4

[nats]
url = "nats://127.0.0.1:4222"
preview_bucket = "PREVIEWS"
chat_subject = "voicechat.chat"
status_subject = "voicechat.status"

[paths]
base_logs_dir = "/var/log/voicechat"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "http://backend:8000", cfg.Backend.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.BackendTimeout())
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "s3cret", cfg.Server.CookieSecret)
	assert.Equal(t, "vc", cfg.Server.SessionName)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL())
	assert.Equal(t, config.PreviewStoreNATS, cfg.Preview.Store)
	assert.Equal(t, 256, cfg.Preview.MaxHeight)
	assert.Equal(t, int64(4<<20), cfg.MaxUploadBytes())
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "PREVIEWS", cfg.NATS.PreviewBucket)
	assert.Equal(t, "voicechat.chat", cfg.NATS.ChatSubject)
	assert.Equal(t, "voicechat.status", cfg.NATS.StatusSubject)
	assert.Equal(t, "/var/log/voicechat", cfg.Paths.BaseLogsDir)
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	cfg.ApplyDefaults()

	assert.Equal(t, config.DefaultBackendURL, cfg.Backend.BaseURL)
	assert.Zero(t, cfg.BackendTimeout())
	assert.Equal(t, config.DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, config.DefaultSessionName, cfg.Server.SessionName)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL())
	assert.Equal(t, config.PreviewStoreMemory, cfg.Preview.Store)
	assert.Equal(t, config.DefaultPreviewMaxHeight, cfg.Preview.MaxHeight)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes())
	assert.Equal(t, config.DefaultPreviewBucket, cfg.NATS.PreviewBucket)
}

func TestApplyDefaults_KeepsConfiguredValues(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Backend: config.BackendConfig{BaseURL: "http://other:1234", TimeoutSeconds: 0},
		Server:  config.ServerConfig{Addr: ":1", CookieSecret: "", SessionName: "x", SessionTTLMinutes: 2},
	}

	cfg.ApplyDefaults()

	assert.Equal(t, "http://other:1234", cfg.Backend.BaseURL)
	assert.Equal(t, ":1", cfg.Server.Addr)
	assert.Equal(t, "x", cfg.Server.SessionName)
	assert.Equal(t, 2*time.Minute, cfg.SessionTTL())
}

func TestApplyEnv_OverridesFileValues(t *testing.T) {
	t.Setenv("VOICECHAT_BACKEND_URL", "http://from-env:8000")
	t.Setenv("VOICECHAT_ADDR", ":7000")
	t.Setenv("VOICECHAT_NATS_URL", "nats://env:4222")

	cfg := config.Config{
		Backend: config.BackendConfig{BaseURL: "http://from-file:8000", TimeoutSeconds: 10},
		Server:  config.ServerConfig{Addr: ":5173", CookieSecret: "", SessionName: "", SessionTTLMinutes: 0},
	}

	err := config.ApplyEnv(&cfg)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env:8000", cfg.Backend.BaseURL)
	assert.Equal(t, 10, cfg.Backend.TimeoutSeconds)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
}
