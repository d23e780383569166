package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8080" || cfg.StoreType != "memory" || cfg.ActivityFeedLimit != 50 {
		t.Errorf("Load() = %+v", cfg)
	}
	if !cfg.MongoTransactions {
		t.Error("MongoTransactions should default to true")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_TYPE", "mongo")
	t.Setenv("MONGO_TRANSACTIONS", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("ACTIVITY_FEED_LIMIT", "20")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "9090" || cfg.StoreType != "mongo" || cfg.MongoTransactions {
		t.Errorf("Load() = %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.TokenTTL != 2*time.Hour || cfg.ActivityFeedLimit != 20 {
		t.Errorf("TokenTTL = %v, ActivityFeedLimit = %d", cfg.TokenTTL, cfg.ActivityFeedLimit)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agro.yaml")
	content := "port: \"7070\"\nstore_type: firestore\nfirestore_project_id: agro-dev\nkafka_topic: from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("KAFKA_TOPIC", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "7070" || cfg.StoreType != "firestore" || cfg.FirestoreProjectID != "agro-dev" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.KafkaTopic != "from-env" {
		t.Errorf("KafkaTopic = %q, want env to win", cfg.KafkaTopic)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown store", env: map[string]string{"STORE_TYPE": "redis"}},
		{name: "production firestore without project", env: map[string]string{
			"ENVIRONMENT": "production", "STORE_TYPE": "firestore", "JWT_SIGNING_KEY": "prod-key",
		}},
		{name: "production with dev key", env: map[string]string{"ENVIRONMENT": "production"}},
		{name: "production mongo without transactions", env: map[string]string{
			"ENVIRONMENT": "production", "STORE_TYPE": "mongo", "JWT_SIGNING_KEY": "prod-key", "MONGO_TRANSACTIONS": "false",
		}},
		{name: "non-positive event queue", env: map[string]string{"EVENT_QUEUE_SIZE": "0"}},
		{name: "missing config file", env: map[string]string{"CONFIG_FILE": "/nonexistent/agro.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load() expected error")
			}
		})
	}
}

func TestLoadProductionMongoWithTransactions(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STORE_TYPE", "mongo")
	t.Setenv("JWT_SIGNING_KEY", "prod-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.MongoTransactions {
		t.Error("MongoTransactions should default to true")
	}
}
