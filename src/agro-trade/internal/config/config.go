package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`

	StoreType                 string `yaml:"store_type"`
	MongoURI                  string `yaml:"mongo_uri"`
	MongoDB                   string `yaml:"mongo_db"`
	MongoTransactions         bool   `yaml:"mongo_transactions"`
	FirestoreProjectID        string `yaml:"firestore_project_id"`
	FirestoreCollectionPrefix string `yaml:"firestore_collection_prefix"`

	JWTSigningKey string        `yaml:"jwt_signing_key"`
	JWTIssuer     string        `yaml:"jwt_issuer"`
	TokenTTL      time.Duration `yaml:"token_ttl"`

	KafkaBrokers       []string `yaml:"kafka_brokers"`
	KafkaTopic         string   `yaml:"kafka_topic"`
	EventWebhookURL    string   `yaml:"event_webhook_url"`
	EventWebhookSecret string   `yaml:"event_webhook_secret"`
	EventQueueSize     int      `yaml:"event_queue_size"`

	ActivityFeedLimit int `yaml:"activity_feed_limit"`
}

func defaults() *Config {
	return &Config{
		Port:                      "8080",
		Environment:               "development",
		StoreType:                 "memory",
		MongoURI:                  "mongodb://localhost:27017",
		MongoDB:                   "agrochain",
		MongoTransactions:         true,
		FirestoreCollectionPrefix: "agro_",
		JWTSigningKey:             "dev-signing-key",
		JWTIssuer:                 "agro-trade",
		TokenTTL:                  24 * time.Hour,
		KafkaTopic:                "agro-trade-events",
		EventQueueSize:            1024,
		ActivityFeedLimit:         50,
	}
}

// Load resolves defaults, then the YAML file named by CONFIG_FILE, then the environment.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.StoreType = getEnv("STORE_TYPE", cfg.StoreType)
	cfg.MongoURI = getEnv("MONGO_URI", cfg.MongoURI)
	cfg.MongoDB = getEnv("MONGO_DB", cfg.MongoDB)
	cfg.MongoTransactions = getEnvBool("MONGO_TRANSACTIONS", cfg.MongoTransactions)
	cfg.FirestoreProjectID = getEnv("FIRESTORE_PROJECT_ID", cfg.FirestoreProjectID)
	cfg.FirestoreCollectionPrefix = getEnv("FIRESTORE_COLLECTION_PREFIX", cfg.FirestoreCollectionPrefix)
	cfg.JWTSigningKey = getEnv("JWT_SIGNING_KEY", cfg.JWTSigningKey)
	cfg.JWTIssuer = getEnv("JWT_ISSUER", cfg.JWTIssuer)
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", cfg.TokenTTL)
	cfg.KafkaBrokers = getEnvList("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.EventWebhookURL = getEnv("EVENT_WEBHOOK_URL", cfg.EventWebhookURL)
	cfg.EventWebhookSecret = getEnv("EVENT_WEBHOOK_SECRET", cfg.EventWebhookSecret)
	cfg.EventQueueSize = getEnvInt("EVENT_QUEUE_SIZE", cfg.EventQueueSize)
	cfg.ActivityFeedLimit = getEnvInt("ACTIVITY_FEED_LIMIT", cfg.ActivityFeedLimit)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreType {
	case "memory", "mongo", "firestore":
	default:
		return fmt.Errorf("unknown STORE_TYPE %q", c.StoreType)
	}
	if c.Environment == "production" && c.StoreType == "firestore" && c.FirestoreProjectID == "" {
		return fmt.Errorf("FIRESTORE_PROJECT_ID is required in production with firestore store")
	}
	// Without transactions a failed Mongo commit can leave part of a batch written.
	if c.Environment == "production" && c.StoreType == "mongo" && !c.MongoTransactions {
		return fmt.Errorf("MONGO_TRANSACTIONS must be enabled in production")
	}
	if c.Environment == "production" && (c.JWTSigningKey == "" || c.JWTSigningKey == defaults().JWTSigningKey) {
		return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}
	if c.EventQueueSize <= 0 {
		return fmt.Errorf("EVENT_QUEUE_SIZE must be positive")
	}
	if c.ActivityFeedLimit <= 0 {
		return fmt.Errorf("ACTIVITY_FEED_LIMIT must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
