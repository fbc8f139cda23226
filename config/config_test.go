package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  base_url: "https://desk.example.com"
  ws_url: "wss://desk.example.com/ws"
websocket:
  heartbeat: 2s
  reconnect_delay: 1s
  max_reconnect_attempts: 3
chat:
  page_size: 50
credential:
  file: "/tmp/creds.json"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://desk.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "wss://desk.example.com/ws", cfg.Server.WSURL)
	assert.Equal(t, 2*time.Second, cfg.WebSocket.Heartbeat)
	assert.Equal(t, time.Second, cfg.WebSocket.ReconnectDelay)
	assert.Equal(t, 3, cfg.WebSocket.MaxReconnectAttempts)
	assert.Equal(t, 50, cfg.Chat.PageSize)
	assert.Equal(t, "/tmp/creds.json", cfg.Credential.File)

	// Unset keys fall back to defaults
	assert.Equal(t, 10*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, 30, cfg.Chat.WindowPageSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:8080", cfg.Server.BaseURL)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.Server.WSURL)
	assert.Equal(t, 4*time.Second, cfg.WebSocket.Heartbeat)
	assert.Equal(t, 5*time.Second, cfg.WebSocket.ReconnectDelay)
	assert.Equal(t, 5, cfg.WebSocket.MaxReconnectAttempts)
	assert.Equal(t, 20, cfg.Chat.PageSize)
	assert.Equal(t, 30, cfg.Chat.WindowPageSize)
	assert.Equal(t, "credentials.json", cfg.Credential.File)
}
