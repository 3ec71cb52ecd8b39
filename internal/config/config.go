package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "TASKRELAY"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabasePath     = "taskrelay.db"
	defaultLogLevel         = "info"
	defaultTokenIssuer      = "taskrelay-auth"
	defaultTokenAudience    = "taskrelay-api"
	defaultTokenTTLMinutes  = 60 * 24
	defaultPingInterval     = 25 * time.Second
	defaultPongTimeout      = 60 * time.Second
	defaultSendBuffer       = 16
	defaultShutdownTimeout  = 10 * time.Second
	defaultAllowedOriginCSV = "http://localhost:3000"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	LogLevel        string
	SigningSecret   string
	TokenIssuer     string
	TokenAudience   string
	TokenTTL        time.Duration
	AllowedOrigins  []string
	PingInterval    time.Duration
	PongTimeout     time.Duration
	SendBuffer      int
	ShutdownTimeout time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.audience", defaultTokenAudience)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOriginCSV)
	configViper.SetDefault("realtime.ping_interval", defaultPingInterval)
	configViper.SetDefault("realtime.pong_timeout", defaultPongTimeout)
	configViper.SetDefault("realtime.send_buffer", defaultSendBuffer)
	configViper.SetDefault("realtime.shutdown_timeout", defaultShutdownTimeout)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		SigningSecret:   configViper.GetString("auth.signing_secret"),
		TokenIssuer:     configViper.GetString("auth.issuer"),
		TokenAudience:   configViper.GetString("auth.audience"),
		TokenTTL:        time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		AllowedOrigins:  splitOrigins(configViper.GetStringSlice("cors.allowed_origins")),
		PingInterval:    configViper.GetDuration("realtime.ping_interval"),
		PongTimeout:     configViper.GetDuration("realtime.pong_timeout"),
		SendBuffer:      configViper.GetInt("realtime.send_buffer"),
		ShutdownTimeout: configViper.GetDuration("realtime.shutdown_timeout"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.PingInterval <= 0 || c.PongTimeout <= 0 {
		return fmt.Errorf("realtime.ping_interval and realtime.pong_timeout must be positive")
	}
	if c.PingInterval >= c.PongTimeout {
		return fmt.Errorf("realtime.ping_interval must be shorter than realtime.pong_timeout")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("realtime.send_buffer must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("realtime.shutdown_timeout must be positive")
	}
	return nil
}

// splitOrigins accepts both list values and a single comma separated env string.
func splitOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, origin := range strings.Split(entry, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
