package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Payment failure policies for the order attached to a failed payment.
const (
	PaymentFailureRevert = "revert" // AWAITING_PAYMENT -> PENDING so the customer can retry
	PaymentFailureHold   = "hold"   // order stays AWAITING_PAYMENT
)

// Config holds application configuration from environment variables
type Config struct {
	// Application
	AppPort     string
	Currency    string
	FrontendURL string

	// Storage: "mysql" or "memory"
	StoreDriver string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string

	// Coordination (locks, idempotency, notification queue): "redis" or "local"
	CoordDriver    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	NotifyQueueKey string

	// Payment gateway
	GatewayBaseURL       string
	GatewayKeyID         string
	GatewayKeySecret     string
	GatewayWebhookSecret string
	GatewayTimeout       time.Duration

	// Order/payment lifecycle
	LockTTL                 time.Duration
	LockWait                time.Duration
	IdempotencyTTL          time.Duration
	WebhookForgetKeyOnError bool
	PaymentFailurePolicy    string
	ReconcileInterval       time.Duration
	ReconcileStaleAfter     time.Duration

	// OpenTelemetry
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPHeaders   string // For SigNoz Cloud: signoz-ingestion-key=<key>
	OTELExporterOTLPInsecure  bool   // true for http://, false for https://
	OTELServiceName           string
	OTELServiceVersion        string
	OTELDeploymentEnvironment string
}

// LoadConfig loads configuration from .env file and environment variables with defaults
func LoadConfig() *Config {
	// .env is optional, only complain about real read errors
	if err := godotenv.Load(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		AppPort:     getEnv("APP_PORT", "8080"),
		Currency:    getEnv("CURRENCY", "INR"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:8000"),

		StoreDriver: getEnv("STORE_DRIVER", "mysql"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "3306"),
		DBUser:      getEnv("DB_USER", "root"),
		DBPassword:  getEnv("DB_PASSWORD", "password"),
		DBName:      getEnv("DB_NAME", "ecommerce"),

		CoordDriver:    getEnv("COORD_DRIVER", "redis"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		NotifyQueueKey: getEnv("NOTIFY_QUEUE_KEY", "ecom:notifications"),

		GatewayBaseURL:       getEnv("GATEWAY_BASE_URL", "https://api.razorpay.com"),
		GatewayKeyID:         getEnv("GATEWAY_KEY_ID", ""),
		GatewayKeySecret:     getEnv("GATEWAY_KEY_SECRET", ""),
		GatewayWebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),
		GatewayTimeout:       getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second),

		LockTTL:                 getEnvDuration("LOCK_TTL", 30*time.Second),
		LockWait:                getEnvDuration("LOCK_WAIT", 5*time.Second),
		IdempotencyTTL:          getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		WebhookForgetKeyOnError: getEnvBool("WEBHOOK_FORGET_KEY_ON_ERROR", true),
		PaymentFailurePolicy:    getEnv("PAYMENT_FAILURE_POLICY", PaymentFailureRevert),
		ReconcileInterval:       getEnvDuration("RECONCILE_INTERVAL", 0),
		ReconcileStaleAfter:     getEnvDuration("RECONCILE_STALE_AFTER", time.Hour),

		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELExporterOTLPHeaders:   getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		OTELExporterOTLPInsecure:  getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "checkout-service"),
		OTELServiceVersion:        getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTELDeploymentEnvironment: getEnv("OTEL_DEPLOYMENT_ENVIRONMENT", "development"),
	}

	if cfg.PaymentFailurePolicy != PaymentFailureRevert && cfg.PaymentFailurePolicy != PaymentFailureHold {
		log.Printf("Warning: unknown PAYMENT_FAILURE_POLICY %q, using %q", cfg.PaymentFailurePolicy, PaymentFailureRevert)
		cfg.PaymentFailurePolicy = PaymentFailureRevert
	}

	return cfg
}

// GetDSN returns the MySQL DSN string
func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true&charset=utf8mb4"
}

// RevertOnPaymentFailure reports whether a failed payment sends its order back to PENDING.
func (c *Config) RevertOnPaymentFailure() bool {
	return c.PaymentFailurePolicy == PaymentFailureRevert
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if value == "true" || value == "1" || value == "yes" {
			return true
		}
		return false
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Warning: invalid integer for %s: %q", key, value)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Warning: invalid duration for %s: %q", key, value)
	}
	return defaultValue
}
