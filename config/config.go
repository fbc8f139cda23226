package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all client configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Credential CredentialConfig `mapstructure:"credential"`
}

// ServerConfig holds the backend endpoints
type ServerConfig struct {
	BaseURL string `mapstructure:"base_url"`
	WSURL   string `mapstructure:"ws_url"`
}

// WebSocketConfig holds real-time transport configuration
type WebSocketConfig struct {
	Heartbeat            time.Duration `mapstructure:"heartbeat"`
	PongWait             time.Duration `mapstructure:"pong_wait"`
	WriteWait            time.Duration `mapstructure:"write_wait"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout"`
	MaxMessageSize       int64         `mapstructure:"max_message_size"`
	WriteChannelSize     int           `mapstructure:"write_channel_size"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
}

// ChatConfig holds history paging and window sizing
type ChatConfig struct {
	PageSize       int `mapstructure:"page_size"`
	WindowPageSize int `mapstructure:"window_page_size"`
}

// CredentialConfig holds the credential store location
type CredentialConfig struct {
	File string `mapstructure:"file"`
}

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with all defaults applied, for consumers
// that wire the client programmatically instead of from a file.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:8080"
	}
	if cfg.Server.WSURL == "" {
		cfg.Server.WSURL = "ws://localhost:8080/ws"
	}
	if cfg.WebSocket.Heartbeat == 0 {
		cfg.WebSocket.Heartbeat = 4 * time.Second
	}
	if cfg.WebSocket.PongWait == 0 {
		cfg.WebSocket.PongWait = 10 * time.Second
	}
	if cfg.WebSocket.WriteWait == 0 {
		cfg.WebSocket.WriteWait = 10 * time.Second
	}
	if cfg.WebSocket.HandshakeTimeout == 0 {
		cfg.WebSocket.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WebSocket.MaxMessageSize == 0 {
		cfg.WebSocket.MaxMessageSize = 51200
	}
	if cfg.WebSocket.WriteChannelSize == 0 {
		cfg.WebSocket.WriteChannelSize = 256
	}
	if cfg.WebSocket.ReconnectDelay == 0 {
		cfg.WebSocket.ReconnectDelay = 5 * time.Second
	}
	if cfg.WebSocket.MaxReconnectAttempts == 0 {
		cfg.WebSocket.MaxReconnectAttempts = 5
	}
	if cfg.Chat.PageSize == 0 {
		cfg.Chat.PageSize = 20
	}
	if cfg.Chat.WindowPageSize == 0 {
		cfg.Chat.WindowPageSize = 30
	}
	if cfg.Credential.File == "" {
		cfg.Credential.File = "credentials.json"
	}
}
