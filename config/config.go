package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	aws_pkg "storefront/pkg/aws"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds all environment-driven settings of the storefront service.
type Config struct {
	Port        string
	Environment string

	MongoURI string
	MongoDB  string
	RedisURL string

	JWTSecret string
	TokenTTL  time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
	FrontendURL         string
	SessionTTL          time.Duration

	AllowedOrigins []string
	MaxBodyBytes   int64

	EventsBackend       string // none | kafka | sns
	KafkaBrokers        []string
	KafkaOrderTopic     string
	OrderEventsTopicARN string

	LockoutThreshold int
	LockoutDuration  time.Duration

	MetricsEnabled   bool
	MetricsNamespace string
}

// IsProduction reports whether the service runs with ENVIRONMENT=production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads configuration from the environment (and an optional .env file).
// When AWS_USE_SECRETS=true the signing and payment secrets are read from
// Secrets Manager, falling back to the environment on failure.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "5000"),
		Environment:         getEnv("ENVIRONMENT", "development"),
		MongoURI:            os.Getenv("MONGO_URI"),
		MongoDB:             getEnv("MONGO_DB", "storefront"),
		RedisURL:            os.Getenv("REDIS_URL"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		TokenTTL:            24 * time.Hour,
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:            strings.ToLower(getEnv("CURRENCY", "usd")),
		FrontendURL:         strings.TrimSuffix(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		SessionTTL:          30 * time.Minute,
		AllowedOrigins:      splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		MaxBodyBytes:        getEnvInt64("MAX_BODY_BYTES", 1<<20),
		EventsBackend:       strings.ToLower(getEnv("EVENTS_BACKEND", "none")),
		KafkaBrokers:        splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaOrderTopic:     getEnv("KAFKA_ORDER_TOPIC", "orders.paid"),
		OrderEventsTopicARN: os.Getenv("ORDER_EVENTS_TOPIC_ARN"),
		LockoutThreshold:    5,
		LockoutDuration:     15 * time.Minute,
		MetricsEnabled:      os.Getenv("CLOUDWATCH_ENABLED") == "true",
		MetricsNamespace:    getEnv("CLOUDWATCH_NAMESPACE", "Storefront"),
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		loadSecrets(cfg)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is required")
	}

	return cfg, nil
}

// Secrets Manager names of the values that override the environment.
const (
	secretJWT           = "storefront/JWT_SECRET"
	secretStripeKey     = "storefront/STRIPE_SECRET_KEY"
	secretStripeWebhook = "storefront/STRIPE_WEBHOOK_SECRET"
)

type secretSource interface {
	GetSecrets(ctx context.Context, names ...string) (map[string]string, error)
}

func loadSecrets(cfg *Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
	if err != nil {
		zap.L().Warn("AWS config unavailable, using environment secrets", zap.Error(err))
		return
	}
	applySecrets(ctx, cfg, aws_pkg.NewSecretStore(awsCfg))
}

// applySecrets overwrites each secret-backed field that the source could
// load; the others keep their environment value.
func applySecrets(ctx context.Context, cfg *Config, source secretSource) {
	targets := map[string]*string{
		secretJWT:           &cfg.JWTSecret,
		secretStripeKey:     &cfg.StripeSecretKey,
		secretStripeWebhook: &cfg.StripeWebhookSecret,
	}
	values, err := source.GetSecrets(ctx, secretJWT, secretStripeKey, secretStripeWebhook)
	if err != nil {
		zap.L().Warn("Some secrets not loaded, keeping environment values", zap.Error(err))
	}
	for name, target := range targets {
		if v, ok := values[name]; ok {
			*target = v
		}
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "/"))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
