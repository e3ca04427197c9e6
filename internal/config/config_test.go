package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig(\"\") error = %v", err)
	}
	if cfg.APIServer.Port != "8081" {
		t.Errorf("APIServer.Port = %q, want 8081", cfg.APIServer.Port)
	}
	if cfg.Subscription.MaxBacklog != 64 {
		t.Errorf("Subscription.MaxBacklog = %d, want 64", cfg.Subscription.MaxBacklog)
	}
	if cfg.Retry.InitialInterval != 100*time.Millisecond {
		t.Errorf("Retry.InitialInterval = %v", cfg.Retry.InitialInterval)
	}
	if cfg.Kafka.Enabled {
		t.Errorf("Kafka.Enabled should default to false")
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("DATABASE:\n  TYPE: memory\nSTORAGE:\n  TYPE: s3\n  S3:\n    BUCKET_NAME: chat-media\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AUTH_BCRYPT_COST", "4")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error = %v", err)
	}
	if cfg.Database.Type != "memory" {
		t.Errorf("Database.Type = %q, want memory", cfg.Database.Type)
	}
	if cfg.Storage.S3.BucketName != "chat-media" {
		t.Errorf("S3.BucketName = %q", cfg.Storage.S3.BucketName)
	}
	if cfg.Auth.BcryptCost != 4 {
		t.Errorf("Auth.BcryptCost = %d, want 4 from env", cfg.Auth.BcryptCost)
	}
}
