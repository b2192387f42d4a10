package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds application configuration
type Config struct {
	Port        int
	Environment string
	Engine      EngineConfig
	Checks      ChecksConfig
	Store       StoreConfig
	LogsDir     string
	Alerts      AlertConfig
	Auth        AuthConfig
	Logging     LoggingConfig
	CORSOrigins []string
}

// EngineConfig controls the probe and rotation cycles
type EngineConfig struct {
	ProbeInterval    time.Duration
	RotationInterval time.Duration
	Workers          int
}

// ChecksConfig limits check registration through the API
type ChecksConfig struct {
	MaxPerUser          int
	AllowPrivateTargets bool
}

// StoreConfig selects and configures the record store backend
type StoreConfig struct {
	Type         string // file, postgres, mongo
	DataDir      string
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	LogSQL       bool
	MongoURI     string
	MongoDB      string
}

// AlertConfig selects the alert transport
type AlertConfig struct {
	Provider string // log, twilio, webhook, kafka
	Rate     float64
	Burst    int

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromPhone  string
	TwilioBaseURL    string

	WebhookURL string

	KafkaBrokers []string
	KafkaTopic   string
}

// AuthConfig holds inspector API credentials
type AuthConfig struct {
	JWTSecret         string
	TokenTTL          time.Duration
	AdminPasswordHash string
}

// LoggingConfig holds diagnostic log settings
type LoggingConfig struct {
	Level  string
	Format string // text, json
	Dir    string
}

// Load loads configuration from a .env file and environment variables
func Load() *Config {
	// A missing .env is normal outside of development
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to load .env file: %v", err)
	}

	env := strings.ToLower(getEnv("ENVIRONMENT", "staging"))

	cfg := &Config{
		Port:        getEnvInt("PORT", defaultPort(env)),
		Environment: env,
		Engine: EngineConfig{
			ProbeInterval:    getEnvDuration("PROBE_INTERVAL", time.Minute),
			RotationInterval: getEnvDuration("ROTATION_INTERVAL", 24*time.Hour),
			Workers:          getEnvInt("WORKERS", 10),
		},
		Checks: ChecksConfig{
			MaxPerUser:          getEnvInt("MAX_CHECKS_PER_USER", 5),
			AllowPrivateTargets: getEnvBool("ALLOW_PRIVATE_TARGETS", env != "production"),
		},
		Store: StoreConfig{
			Type:         getEnv("STORE_TYPE", "file"),
			DataDir:      getEnv("DATA_DIR", ".data"),
			DSN:          getEnv("DATABASE_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
			LogSQL:       getEnvBool("DB_LOG_SQL", false),
			MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDB:      getEnv("MONGO_DB", "checkpulse"),
		},
		LogsDir: getEnv("LOGS_DIR", ".logs"),
		Alerts: AlertConfig{
			Provider:         getEnv("ALERT_PROVIDER", "log"),
			Rate:             getEnvFloat("ALERT_RATE", 1),
			Burst:            getEnvInt("ALERT_BURST", 5),
			TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			TwilioFromPhone:  os.Getenv("TWILIO_FROM_PHONE"),
			TwilioBaseURL:    getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
			WebhookURL:       os.Getenv("WEBHOOK_URL"),
			KafkaBrokers:     splitAndTrim(getEnv("KAFKA_BROKERS", ""), ","),
			KafkaTopic:       getEnv("KAFKA_TOPIC", "checkpulse.alerts"),
		},
		Auth: AuthConfig{
			JWTSecret:         loadJWTSecret(env),
			TokenTTL:          getEnvDuration("TOKEN_TTL", time.Hour),
			AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
			Dir:    os.Getenv("LOG_DIR"),
		},
		CORSOrigins: loadCORSOrigins(),
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	return cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Engine.ProbeInterval <= 0 {
		return fmt.Errorf("PROBE_INTERVAL must be positive")
	}
	if c.Engine.RotationInterval <= 0 {
		return fmt.Errorf("ROTATION_INTERVAL must be positive")
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1")
	}

	if c.Checks.MaxPerUser < 1 {
		return fmt.Errorf("MAX_CHECKS_PER_USER must be at least 1")
	}

	switch c.Store.Type {
	case "file":
		if c.Store.DataDir == "" {
			return fmt.Errorf("DATA_DIR is required for the file store")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for the postgres store")
		}
	case "mongo":
		if c.Store.MongoURI == "" || c.Store.MongoDB == "" {
			return fmt.Errorf("MONGO_URI and MONGO_DB are required for the mongo store")
		}
	default:
		return fmt.Errorf("unsupported store type: %s", c.Store.Type)
	}

	if c.LogsDir == "" {
		return fmt.Errorf("LOGS_DIR is required")
	}

	switch c.Alerts.Provider {
	case "log":
	case "twilio":
		if c.Alerts.TwilioAccountSID == "" || c.Alerts.TwilioAuthToken == "" || c.Alerts.TwilioFromPhone == "" {
			return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_PHONE are required for twilio alerts")
		}
	case "webhook":
		if c.Alerts.WebhookURL == "" {
			return fmt.Errorf("WEBHOOK_URL is required for webhook alerts")
		}
	case "kafka":
		if len(c.Alerts.KafkaBrokers) == 0 || c.Alerts.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required for kafka alerts")
		}
	default:
		return fmt.Errorf("unsupported alert provider: %s", c.Alerts.Provider)
	}
	if c.Alerts.Rate <= 0 || c.Alerts.Burst < 1 {
		return fmt.Errorf("ALERT_RATE must be positive and ALERT_BURST at least 1")
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.Environment == "production" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}

	return nil
}

func defaultPort(env string) int {
	if env == "production" {
		return 5000
	}
	return 3000
}

func loadJWTSecret(env string) string {
	secret := os.Getenv("JWT_SECRET")
	if secret != "" {
		return secret
	}

	if env == "production" {
		log.Fatal("FATAL: JWT_SECRET environment variable is required in production")
	}

	log.Warn("JWT_SECRET not set. Generating random secret, tokens will not survive a restart.")
	return generateRandomSecret()
}

func loadCORSOrigins() []string {
	if appURL := strings.TrimRight(os.Getenv("APP_URL"), "/"); appURL != "" {
		return []string{appURL}
	}
	return []string{"http://localhost:3000", "http://localhost:8080"}
}

func splitAndTrim(s, sep string) []string {
	parts := []string{}
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Warnf("Ignoring invalid integer for %s: %q", key, value)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Warnf("Ignoring invalid number for %s: %q", key, value)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warnf("Ignoring invalid duration for %s: %q", key, value)
	}
	return fallback
}

func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		log.Fatal("Failed to generate random secret:", err)
	}
	return base64.URLEncoding.EncodeToString(bytes)
}
