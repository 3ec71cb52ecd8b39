package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != "0.0.0.0:8080" || cfg.DatabasePath != "taskrelay.db" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.PingInterval != 25*time.Second || cfg.PongTimeout != 60*time.Second {
		t.Fatalf("unexpected realtime timing %s/%s", cfg.PingInterval, cfg.PongTimeout)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("unexpected token ttl %s", cfg.TokenTTL)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("TASKRELAY_AUTH_SIGNING_SECRET", "from-env")
	t.Setenv("TASKRELAY_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TASKRELAY_REALTIME_PING_INTERVAL", "5s")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SigningSecret != "from-env" {
		t.Fatalf("expected secret from env, got %q", cfg.SigningSecret)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.PingInterval != 5*time.Second {
		t.Fatalf("unexpected ping interval %s", cfg.PingInterval)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	configViper := NewViper()
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected missing secret to fail")
	}

	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("realtime.ping_interval", "90s")
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected ping interval longer than pong timeout to fail")
	}
}
