package cli

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaforge/config"
)

// writeConfig writes a configuration using the copy encoder under dir.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "mediaforge.yaml")
	content := fmt.Sprintf(`data_dir: %q
temp_root: %q
default_encoder: copy
encoders: [copy]
logging:
  level: error
  console: true
`, filepath.Join(dir, "data"), filepath.Join(dir, "tmp"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVolumeCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))
	dst := filepath.Join(dir, "copies", "nested", "dst.txt")

	_, err := run(t, cfg, "volume", "cp", "file://"+filepath.ToSlash(src), "file://"+filepath.ToSlash(dst))
	require.NoError(t, err)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	out, err := run(t, cfg, "volume", "ls", "file://"+filepath.ToSlash(filepath.Join(dir, "copies")))
	require.NoError(t, err)
	assert.Equal(t, "nested/\n", out)

	_, err = run(t, cfg, "volume", "rm", "file://"+filepath.ToSlash(dst))
	require.NoError(t, err)
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))

	_, err = run(t, cfg, "volume", "ls", "gopher://host/dir")
	assert.Error(t, err)
}

func TestCredentialsCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	_, err := run(t, cfg, "credentials", "set", "basic", "dav.example.com", "-u", "alice", "-p", "s3cret")
	require.NoError(t, err)
	_, err = run(t, cfg, "credentials", "set", "s3", "media-bucket", "--data", "accessKey=AKIA,secretKey=shh")
	require.NoError(t, err)

	out, err := run(t, cfg, "credentials", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "dav.example.com")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "accessKey,secretKey")
	assert.NotContains(t, out, "s3cret")
	assert.NotContains(t, out, "shh")

	_, err = run(t, cfg, "credentials", "delete", "basic", "dav.example.com")
	require.NoError(t, err)
	out, err = run(t, cfg, "credentials", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "dav.example.com")

	_, err = run(t, cfg, "credentials", "set", "basic", "empty.example.com")
	assert.Error(t, err)
}

func TestTranscodeCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	src := filepath.Join(dir, "in.mp4")
	require.NoError(t, os.WriteFile(src, []byte("frames"), 0o644))
	dst := filepath.Join(dir, "out", "in.mp4")

	out, err := run(t, cfg, "transcode", "--wait", "file://"+filepath.ToSlash(src), "file://"+filepath.ToSlash(dst))
	require.NoError(t, err)
	assert.Contains(t, out, "task: task_copy_")
	assert.Contains(t, out, "urn:  urn:uuid:")
	assert.Contains(t, out, "status: ready")

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "frames", string(data))

	_, err = run(t, cfg, "transcode", "file://"+filepath.ToSlash(filepath.Join(dir, "missing.mp4")), "file://"+filepath.ToSlash(dst+".2"))
	assert.Error(t, err)

	_, err = run(t, cfg, "transcode", "--encoder", "ffmpeg", "file://"+filepath.ToSlash(src), "file://"+filepath.ToSlash(dst))
	assert.Error(t, err)
}

func TestRootCommand_BadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transcode:\n  max_concurrent: 0\n"), 0o644))

	_, err := run(t, path, "volume", "ls", "file:///")
	assert.Error(t, err)
}

func TestTokenPublicKey(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	key, err := tokenPublicKey(cfg)
	require.NoError(t, err)
	assert.Nil(t, key)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	cfg.Server.TokenPublicKey = filepath.Join(dir, "token.pub")
	require.NoError(t, os.WriteFile(cfg.Server.TokenPublicKey, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	key, err = tokenPublicKey(cfg)
	require.NoError(t, err)
	assert.True(t, priv.PublicKey.Equal(key))

	cfg.Server.TokenPublicKey = filepath.Join(dir, "missing.pub")
	_, err = tokenPublicKey(cfg)
	assert.Error(t, err)
}
