package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	os.Clearenv()
	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.IDLength != 8 {
		t.Errorf("expected default id length 8, got %d", cfg.IDLength)
	}
	if cfg.StorageType != "memory" {
		t.Errorf("expected default storage memory, got %s", cfg.StorageType)
	}
	if cfg.ReapInterval != time.Minute {
		t.Errorf("expected default reap interval 1m, got %v", cfg.ReapInterval)
	}
	if cfg.TestMode {
		t.Errorf("test mode must be off by default")
	}
}

func TestLoadConfig_FlagsThenEnv(t *testing.T) {
	os.Clearenv()
	t.Setenv("PASTELITE_PORT", "9090")
	t.Setenv("PASTELITE_TEST_MODE", "1")
	t.Setenv("PASTELITE_REAP_INTERVAL", "30s")

	cfg, err := LoadConfig([]string{"-port", "7070", "-storage-type", "sqlite", "-sqlite-path", "/tmp/p.db"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected env to override flag port, got %d", cfg.Port)
	}
	if cfg.StorageType != "sqlite" || cfg.SQLitePath != "/tmp/p.db" {
		t.Errorf("expected sqlite flags to apply, got %s %s", cfg.StorageType, cfg.SQLitePath)
	}
	if !cfg.TestMode {
		t.Errorf("expected test mode from env")
	}
	if cfg.ReapInterval != 30*time.Second {
		t.Errorf("expected reap interval 30s, got %v", cfg.ReapInterval)
	}
}

func TestLoadConfig_DatabaseURLFallback(t *testing.T) {
	os.Clearenv()
	t.Setenv("PASTELITE_STORAGE_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/pastes")

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PostgresDSN != "postgres://u:p@localhost:5432/pastes" {
		t.Errorf("expected DATABASE_URL fallback, got %q", cfg.PostgresDSN)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Port = 0 }, true},
		{"short id", func(c *Config) { c.IDLength = 4 }, true},
		{"negative reap", func(c *Config) { c.ReapInterval = -time.Second }, true},
		{"zero timeout", func(c *Config) { c.OperationTimeout = 0 }, true},
		{"unknown storage", func(c *Config) { c.StorageType = "redis" }, true},
		{"postgres without dsn", func(c *Config) { c.StorageType = "postgres" }, true},
		{"postgres dsn", func(c *Config) {
			c.StorageType = "postgres"
			c.PostgresDSN = "postgresql://localhost/pastes"
		}, false},
		{"dynamodb without table", func(c *Config) {
			c.StorageType = "dynamodb"
			c.DynamoDBTable = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAPIKeyList(t *testing.T) {
	cfg := &Config{APIKeys: " a, ,b ,"}
	keys := cfg.APIKeyList()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("unexpected keys %v", keys)
	}
}
