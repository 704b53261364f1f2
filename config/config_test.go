package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("STORE_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 500, cfg.Moderation.MaxContentLength)
	assert.Equal(t, 2*time.Second, cfg.Audit.WriteTimeout)
	assert.Equal(t, 168, cfg.JWT.ExpiryHours)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("MAX_CONTENT_LENGTH", "280")
	t.Setenv("AUDIT_WRITE_TIMEOUT", "750ms")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 280, cfg.Moderation.MaxContentLength)
	assert.Equal(t, 750*time.Millisecond, cfg.Audit.WriteTimeout)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:     ServerConfig{Env: "production"},
			Store:      StoreConfig{Driver: "postgres"},
			JWT:        JWTConfig{Secret: "real-secret"},
			Captcha:    CaptchaConfig{Secret: "captcha"},
			Moderation: ModerationConfig{MaxContentLength: 500},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"Valid production", func(c *Config) {}, false},
		{"Default JWT secret in production", func(c *Config) { c.JWT.Secret = defaultJWTSecret }, true},
		{"Missing captcha secret in production", func(c *Config) { c.Captcha.Secret = "" }, true},
		{"Memory store in production", func(c *Config) { c.Store.Driver = "memory" }, true},
		{"Unknown driver", func(c *Config) { c.Server.Env = "development"; c.Store.Driver = "sqlite" }, true},
		{"SMTP without sender", func(c *Config) { c.SMTP.Host = "smtp.example.edu" }, true},
		{"Zero content length", func(c *Config) { c.Moderation.MaxContentLength = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
