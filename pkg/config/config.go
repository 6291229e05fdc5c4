package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Notify   NotifyConfig
	Frontend FrontendConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// PublicURL is the externally reachable base of this API, used to
	// build links embedded in outbound emails
	PublicURL string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// AuthConfig holds token signing configuration
type AuthConfig struct {
	// JWTSecret signs session tokens. Required.
	JWTSecret string
	// TokenTTL is the session token lifetime. One policy for every
	// handler; the legacy per-handler 24h/30d split was a bug.
	TokenTTL time.Duration
}

// StorageConfig holds object storage (S3/MinIO) configuration for documents
type StorageConfig struct {
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// MaxUploadBytes bounds multipart document uploads
	MaxUploadBytes int64
}

// RedisConfig holds the optional redis connection used by the reminder deduper
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// NotifyConfig holds notification provider credentials. Empty credentials
// degrade the corresponding channel to a logged no-op.
type NotifyConfig struct {
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	SMSAccountSID string
	SMSAuthToken  string
	SMSFrom       string

	WhatsAppFrom string
}

// FrontendConfig holds settings for links rendered into outbound notifications
type FrontendConfig struct {
	// BaseURL is used to build task refusal links and redirect targets
	BaseURL string
	// AllowedOrigins for CORS
	AllowedOrigins []string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:   loadServerConfig(),
		Database: loadDatabaseConfig(),
		Auth:     loadAuthConfig(),
		Storage:  loadStorageConfig(),
		Redis:    loadRedisConfig(),
		Notify:   loadNotifyConfig(),
		Frontend: loadFrontendConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TASKBOARD_HOST", "0.0.0.0"),
		Port:            getEnv("TASKBOARD_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TASKBOARD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TASKBOARD_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TASKBOARD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TASKBOARD_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("TASKBOARD_HEALTH_PORT", "9090"),
		PublicURL:       strings.TrimRight(getEnv("TASKBOARD_PUBLIC_URL", "http://localhost:8080"), "/"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:          getEnv("TASKBOARD_POSTGRES_URL", ""),
		MaxOpenConns: getEnvInt("TASKBOARD_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns: getEnvInt("TASKBOARD_POSTGRES_IDLE_CONNS", 5),
		ConnLifetime: getEnvDuration("TASKBOARD_POSTGRES_CONN_LIFETIME", 30*time.Minute),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: getEnv("TASKBOARD_JWT_SECRET", ""),
		TokenTTL:  getEnvDuration("TASKBOARD_TOKEN_TTL", 24*time.Hour),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		S3Endpoint:     getEnv("TASKBOARD_S3_ENDPOINT", ""),
		S3Region:       getEnv("TASKBOARD_S3_REGION", "us-east-1"),
		S3Bucket:       getEnv("TASKBOARD_S3_BUCKET", ""),
		S3AccessKey:    getEnv("TASKBOARD_S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("TASKBOARD_S3_SECRET_KEY", ""),
		S3UsePathStyle: getEnvBool("TASKBOARD_S3_USE_PATH_STYLE", false),
		MaxUploadBytes: getEnvInt64("TASKBOARD_MAX_UPLOAD_BYTES", 10<<20),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("TASKBOARD_REDIS_URL", ""),
		Password: getEnv("TASKBOARD_REDIS_PASSWORD", ""),
		DB:       getEnvInt("TASKBOARD_REDIS_DB", 0),
	}
}

func loadNotifyConfig() NotifyConfig {
	return NotifyConfig{
		SMTPHost:      getEnv("TASKBOARD_SMTP_HOST", ""),
		SMTPPort:      getEnv("TASKBOARD_SMTP_PORT", "587"),
		SMTPUser:      getEnv("TASKBOARD_SMTP_USER", ""),
		SMTPPass:      getEnv("TASKBOARD_SMTP_PASS", ""),
		SMTPFrom:      getEnv("TASKBOARD_SMTP_FROM", ""),
		SMSAccountSID: getEnv("TASKBOARD_SMS_ACCOUNT_SID", ""),
		SMSAuthToken:  getEnv("TASKBOARD_SMS_AUTH_TOKEN", ""),
		SMSFrom:       getEnv("TASKBOARD_SMS_FROM", ""),
		WhatsAppFrom:  getEnv("TASKBOARD_WHATSAPP_FROM", ""),
	}
}

func loadFrontendConfig() FrontendConfig {
	origins := getEnv("TASKBOARD_ALLOWED_ORIGINS", "*")
	return FrontendConfig{
		BaseURL:        strings.TrimRight(getEnv("TASKBOARD_FRONTEND_URL", "http://localhost:3000"), "/"),
		AllowedOrigins: strings.Split(origins, ","),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}

	// Object storage is optional; when an endpoint is set the bucket must be too
	if c.Storage.S3Endpoint != "" && c.Storage.S3Bucket == "" {
		return fmt.Errorf("S3 bucket is required when S3 endpoint is set")
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
