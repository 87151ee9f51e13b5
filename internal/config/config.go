package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends selectable with STORE_BACKEND.
const (
	StoreDynamo = "dynamo"
	StoreSQLite = "sqlite"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	StoreBackend   string
	SQLitePath     string
	DynamoTables   DynamoTables

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	PushTTL         int // seconds the relay may hold an undelivered message
	PushSendTimeout time.Duration
	PushConcurrency int
	PushIcon        string
	PushBadge       string
	PushTag         string

	SNSEnabled bool
	SNSRegion  string

	WSHandshakeTimeout time.Duration
	WSSendBuffer       int

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	PushSubscriptions string
	Notifications     string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StoreBackend:   strings.ToLower(getEnv("STORE_BACKEND", StoreDynamo)),
		SQLitePath:     getEnv("SQLITE_PATH", "./notify.db"),
		DynamoTables: DynamoTables{
			PushSubscriptions: getEnv("DYNAMO_TABLE_PUSH_SUBSCRIPTIONS", "push_subscriptions"),
			Notifications:     getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
		},
		JWTPrivateKeyPath:  getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:   getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:          time.Duration(getEnvInt("JWT_EXPIRY_DAYS", 7)) * 24 * time.Hour,
		VAPIDPublicKey:     getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey:    getEnv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:       getEnv("VAPID_SUBJECT", "mailto:noreply@example.com"),
		PushTTL:            getEnvInt("PUSH_TTL", 24*60*60),
		PushSendTimeout:    getEnvDuration("PUSH_SEND_TIMEOUT", 10*time.Second),
		PushConcurrency:    getEnvInt("PUSH_CONCURRENCY", 8),
		PushIcon:           getEnv("PUSH_ICON", ""),
		PushBadge:          getEnv("PUSH_BADGE", ""),
		PushTag:            getEnv("PUSH_TAG", ""),
		SNSEnabled:         getEnvBool("SNS_ENABLED", false),
		SNSRegion:          getEnv("SNS_REGION", "us-east-1"),
		WSHandshakeTimeout: getEnvDuration("WS_HANDSHAKE_TIMEOUT", 10*time.Second),
		WSSendBuffer:       getEnvInt("WS_SEND_BUFFER", 32),
		AllowedOrigins:     strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("15s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
