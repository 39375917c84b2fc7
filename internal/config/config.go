package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	// MaxMessageBytes caps a single inbound WebSocket frame.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	// ClientBuffer is the per-connection outbound event queue length.
	ClientBuffer int `mapstructure:"client_buffer" yaml:"client_buffer"`
	// FramesPerMinute limits inbound frames per connection; 0 disables the limit.
	FramesPerMinute int      `mapstructure:"frames_per_minute" yaml:"frames_per_minute"`
	AllowedOrigins  []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	SessionCookie string `mapstructure:"session_cookie" yaml:"session_cookie"`
	JWTSecret     string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer     string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience   string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// StrictJoin admits join_room only for room ids present in the rooms table.
	StrictJoin bool `mapstructure:"strict_join" yaml:"strict_join"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8000",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "mechat.db",
		MaxMessageBytes:   1 << 16,
		ClientBuffer:      64,
		FramesPerMinute:   0,
		AllowedOrigins:    []string{"localhost:5173"},
		SessionCookie:     "session_token",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.ClientBuffer != 0 {
		c.ClientBuffer = other.ClientBuffer
	}
	if other.FramesPerMinute != 0 {
		c.FramesPerMinute = other.FramesPerMinute
	}
	if len(other.AllowedOrigins) > 0 {
		c.AllowedOrigins = other.AllowedOrigins
	}
	if other.SessionCookie != "" {
		c.SessionCookie = other.SessionCookie
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.StrictJoin {
		c.StrictJoin = true
	}
}
