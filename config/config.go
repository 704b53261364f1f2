package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "change-this-secret-key"

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Store      StoreConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	API        APIConfig
	CORS       CORSConfig
	Moderation ModerationConfig
	Audit      AuditConfig
	Captcha    CaptchaConfig
	SMTP       SMTPConfig
	Bootstrap  BootstrapConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// StoreConfig selects the storage backend: "postgres" or "memory".
type StoreConfig struct {
	Driver string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type APIConfig struct {
	RateLimitSubmissionsPerMin int
	RateLimitBurst             int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type ModerationConfig struct {
	MaxContentLength int
	// PolicyFile optionally overrides the built-in role/action table.
	PolicyFile string
}

type AuditConfig struct {
	WriteTimeout  time.Duration
	RetryInterval time.Duration
	QueueSize     int
}

type CaptchaConfig struct {
	Secret    string
	VerifyURL string
	Timeout   time.Duration
	RetryMax  int
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Pass     string
	From     string
	FromName string
}

// BootstrapConfig seeds a super admin on startup when both fields are set.
type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	origins := strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvBool("LOG_PRETTY", false),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "postgres"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "wall"),
			Password: getEnv("DB_PASSWORD", "wall_password"),
			DBName:   getEnv("DB_NAME", "wall_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", defaultJWTSecret),
			ExpiryHours: getEnvInt("JWT_EXPIRY_HOURS", 168),
		},
		API: APIConfig{
			RateLimitSubmissionsPerMin: getEnvInt("RATE_LIMIT_SUBMISSIONS_PER_MINUTE", 6),
			RateLimitBurst:             getEnvInt("RATE_LIMIT_BURST", 3),
		},
		CORS: CORSConfig{
			AllowedOrigins: origins,
		},
		Moderation: ModerationConfig{
			MaxContentLength: getEnvInt("MAX_CONTENT_LENGTH", 500),
			PolicyFile:       getEnv("ACL_POLICY_FILE", ""),
		},
		Audit: AuditConfig{
			WriteTimeout:  getEnvDuration("AUDIT_WRITE_TIMEOUT", 2*time.Second),
			RetryInterval: getEnvDuration("AUDIT_RETRY_INTERVAL", 5*time.Second),
			QueueSize:     getEnvInt("AUDIT_QUEUE_SIZE", 1024),
		},
		Captcha: CaptchaConfig{
			Secret:    getEnv("CAPTCHA_SECRET", ""),
			VerifyURL: getEnv("CAPTCHA_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
			Timeout:   getEnvDuration("CAPTCHA_TIMEOUT", 5*time.Second),
			RetryMax:  getEnvInt("CAPTCHA_RETRY_MAX", 2),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			User:     getEnv("SMTP_USER", ""),
			Pass:     getEnv("SMTP_PASS", ""),
			From:     getEnv("SMTP_FROM", ""),
			FromName: getEnv("SMTP_FROM_NAME", "Confession Wall"),
		},
		Bootstrap: BootstrapConfig{
			AdminEmail:    getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
			AdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.JWT.Secret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.Captcha.Secret == "" {
			return fmt.Errorf("CAPTCHA_SECRET must be set in production")
		}
		if c.Store.Driver == "memory" {
			return fmt.Errorf("STORE_DRIVER=memory is not allowed in production")
		}
	}
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Moderation.MaxContentLength <= 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive")
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetDSN returns the database connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}
