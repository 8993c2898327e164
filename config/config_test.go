package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "file", cfg.DefaultScheme)
	assert.Equal(t, "ffmpeg", cfg.DefaultEncoder)
	assert.Equal(t, "webdav", cfg.Volumes["http"])
	assert.Equal(t, "temporary", cfg.Volumes["tmp"])
	assert.Equal(t, "digest", cfg.Auth["digest"])
	assert.Equal(t, 100*time.Millisecond, cfg.Transcode.UpdateInterval)
	assert.Equal(t, "memory", cfg.TaskStatus.Backend)
	assert.Equal(t, 30*24*time.Hour, cfg.Failures.MaxAge)
	assert.Empty(t, cfg.GCS.Endpoint)
	assert.Empty(t, cfg.Publish.Locator)
	assert.NotEmpty(t, cfg.TempRoot)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mediaforge.yaml")
	content := `
data_dir: /srv/mediaforge
temp_root: /srv/tmp
transcode:
  max_concurrent: 4
  update_interval: 250ms
volumes:
  file: filesystem
  dav: webdav
publish:
  locator: file:///srv/www/media
  base_url: https://cdn.example.com/media/
server:
  token_public_key: /etc/mediaforge/token.pub
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("MEDIAFORGE_TRANSCODE_MAX_QUEUED", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/mediaforge", cfg.DataDir)
	assert.Equal(t, "/srv/tmp", cfg.TempRoot)
	assert.Equal(t, 4, cfg.Transcode.MaxConcurrent)
	assert.Equal(t, 3, cfg.Transcode.MaxQueued)
	assert.Equal(t, 250*time.Millisecond, cfg.Transcode.UpdateInterval)
	assert.Equal(t, "webdav", cfg.Volumes["dav"])
	assert.Equal(t, "file:///srv/www/media", cfg.Publish.Locator)
	assert.Equal(t, "https://cdn.example.com/media/", cfg.Publish.BaseURL)
	assert.Equal(t, "/etc/mediaforge/token.pub", cfg.Server.TokenPublicKey)
	assert.Equal(t, "/srv/mediaforge/credentials.db", cfg.CredentialsDBPath())
}

func validTestConfig() *Config {
	return &Config{
		DataDir:        "./data",
		DefaultScheme:  "file",
		DefaultEncoder: "ffmpeg",
		Volumes:        map[string]string{"file": "filesystem"},
		Auth:           map[string]string{"basic": "basic"},
		Encoders:       []string{"ffmpeg", "copy"},
		Transcode:      TranscodeConfig{MaxConcurrent: 1, UpdateInterval: time.Second},
		TaskStatus:     TaskStatusConfig{Backend: "memory"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"unknown driver", func(c *Config) { c.Volumes["ftp"] = "ftp" }, "unknown driver"},
		{"default scheme unbound", func(c *Config) { c.DefaultScheme = "tmp" }, "default_scheme"},
		{"unknown strategy", func(c *Config) { c.Auth["ntlm"] = "ntlm" }, "unknown strategy"},
		{"unknown encoder", func(c *Config) { c.Encoders = append(c.Encoders, "x264") }, "unknown encoder"},
		{"default encoder disabled", func(c *Config) { c.Encoders = []string{"copy"} }, "default_encoder"},
		{"zero concurrency", func(c *Config) { c.Transcode.MaxConcurrent = 0 }, "max_concurrent"},
		{"zero interval", func(c *Config) { c.Transcode.UpdateInterval = 0 }, "update_interval"},
		{"bad backend", func(c *Config) { c.TaskStatus.Backend = "memcached" }, "taskstatus.backend"},
		{"redis without addr", func(c *Config) { c.TaskStatus.Backend = "redis" }, "redis.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
