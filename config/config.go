package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the pastelite service
type Config struct {
	Port int    `json:"port"`
	URL  string `json:"url"`

	// Storage configuration
	StorageType      string `json:"storage_type"` // memory, sqlite, postgres, mongodb, dynamodb
	SQLitePath       string `json:"sqlite_path"`
	PostgresDSN      string `json:"-"`
	MigrateOnStart   bool   `json:"migrate_on_start"`
	MongoURI         string `json:"-"`
	MongoDatabase    string `json:"mongo_database"`
	MongoCollection  string `json:"mongo_collection"`
	DynamoDBTable    string `json:"dynamodb_table"`
	AWSRegion        string `json:"aws_region"`
	DynamoDBEndpoint string `json:"dynamodb_endpoint"`

	// Paste lifecycle
	IDLength         int           `json:"id_length"`
	ReapInterval     time.Duration `json:"reap_interval"`
	OperationTimeout time.Duration `json:"operation_timeout"`

	// Operational configuration
	TestMode      bool   `json:"test_mode"`
	APIKeys       string `json:"-"`
	EnableMetrics bool   `json:"enable_metrics"`
	LogLevel      string `json:"log_level"`
	LogFile       string `json:"log_file"`

	Version    string `json:"version"`
	BuildTime  string `json:"build_time"`
	CommitHash string `json:"commit_hash"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:             8080,
		StorageType:      "memory",
		SQLitePath:       "pastelite.db",
		MigrateOnStart:   true,
		MongoURI:         "mongodb://localhost:27017",
		MongoDatabase:    "pastelite",
		MongoCollection:  "pastes",
		DynamoDBTable:    "pastelite-pastes",
		IDLength:         8,
		ReapInterval:     time.Minute,
		OperationTimeout: 5 * time.Second,
		EnableMetrics:    true,
		LogLevel:         "info",
	}
}

// LoadConfig loads configuration from CLI flags, then environment variables
func LoadConfig(args []string) (*Config, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet("pastelite", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Port to listen on")
	fs.StringVar(&cfg.URL, "url", cfg.URL, "Base URL for paste links (default: derived from request)")
	fs.StringVar(&cfg.StorageType, "storage-type", cfg.StorageType, "Storage backend: memory, sqlite, postgres, mongodb, dynamodb")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database file")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection URL")
	fs.BoolVar(&cfg.MigrateOnStart, "migrate", cfg.MigrateOnStart, "Apply PostgreSQL migrations at startup")
	fs.StringVar(&cfg.MongoURI, "mongodb-uri", cfg.MongoURI, "MongoDB connection URI")
	fs.StringVar(&cfg.MongoDatabase, "mongodb-database", cfg.MongoDatabase, "MongoDB database name")
	fs.StringVar(&cfg.MongoCollection, "mongodb-collection", cfg.MongoCollection, "MongoDB collection name")
	fs.StringVar(&cfg.DynamoDBTable, "dynamodb-table", cfg.DynamoDBTable, "DynamoDB table name")
	fs.StringVar(&cfg.AWSRegion, "aws-region", cfg.AWSRegion, "AWS region for DynamoDB")
	fs.StringVar(&cfg.DynamoDBEndpoint, "dynamodb-endpoint", cfg.DynamoDBEndpoint, "DynamoDB endpoint override")
	fs.IntVar(&cfg.IDLength, "id-length", cfg.IDLength, "Length of generated paste ids")
	fs.DurationVar(&cfg.ReapInterval, "reap-interval", cfg.ReapInterval, "Expired paste sweep interval (0 disables)")
	fs.DurationVar(&cfg.OperationTimeout, "op-timeout", cfg.OperationTimeout, "Deadline for a single store operation")
	fs.BoolVar(&cfg.TestMode, "test-mode", cfg.TestMode, "Honour the X-Test-Now-Ms header")
	fs.StringVar(&cfg.APIKeys, "api-keys", cfg.APIKeys, "Comma-separated API keys for operator routes")
	fs.BoolVar(&cfg.EnableMetrics, "enable-metrics", cfg.EnableMetrics, "Expose /metrics")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Path to JSON log file (default: stderr)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Override with environment variables if present
	cfg.Port = getEnvInt("PASTELITE_PORT", cfg.Port)
	cfg.URL = getEnvString("PASTELITE_URL", cfg.URL)
	cfg.StorageType = getEnvString("PASTELITE_STORAGE_TYPE", cfg.StorageType)
	cfg.SQLitePath = getEnvString("PASTELITE_SQLITE_PATH", cfg.SQLitePath)
	cfg.PostgresDSN = getEnvString("PASTELITE_POSTGRES_DSN", getEnvString("DATABASE_URL", cfg.PostgresDSN))
	cfg.MigrateOnStart = getEnvBool("PASTELITE_MIGRATE", cfg.MigrateOnStart)
	cfg.MongoURI = getEnvString("PASTELITE_MONGODB_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnvString("PASTELITE_MONGODB_DATABASE", cfg.MongoDatabase)
	cfg.MongoCollection = getEnvString("PASTELITE_MONGODB_COLLECTION", cfg.MongoCollection)
	cfg.DynamoDBTable = getEnvString("PASTELITE_DYNAMODB_TABLE", cfg.DynamoDBTable)
	cfg.AWSRegion = getEnvString("PASTELITE_AWS_REGION", cfg.AWSRegion)
	cfg.DynamoDBEndpoint = getEnvString("PASTELITE_DYNAMODB_ENDPOINT", cfg.DynamoDBEndpoint)
	cfg.IDLength = getEnvInt("PASTELITE_ID_LENGTH", cfg.IDLength)
	cfg.ReapInterval = getEnvDuration("PASTELITE_REAP_INTERVAL", cfg.ReapInterval)
	cfg.OperationTimeout = getEnvDuration("PASTELITE_OP_TIMEOUT", cfg.OperationTimeout)
	cfg.TestMode = getEnvBool("PASTELITE_TEST_MODE", cfg.TestMode)
	cfg.APIKeys = getEnvString("PASTELITE_API_KEYS", cfg.APIKeys)
	cfg.EnableMetrics = getEnvBool("PASTELITE_ENABLE_METRICS", cfg.EnableMetrics)
	cfg.LogLevel = getEnvString("PASTELITE_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnvString("PASTELITE_LOG_FILE", cfg.LogFile)

	return cfg, cfg.Validate()
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.IDLength < 6 || c.IDLength > 32 {
		return fmt.Errorf("id length must be between 6 and 32: %d", c.IDLength)
	}

	if c.ReapInterval < 0 {
		return fmt.Errorf("reap interval cannot be negative: %v", c.ReapInterval)
	}

	if c.OperationTimeout <= 0 {
		return fmt.Errorf("operation timeout must be positive: %v", c.OperationTimeout)
	}

	switch c.StorageType {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path cannot be empty")
		}
	case "postgres":
		if !strings.HasPrefix(c.PostgresDSN, "postgres://") && !strings.HasPrefix(c.PostgresDSN, "postgresql://") {
			return fmt.Errorf("postgres DSN must be a postgres:// URL")
		}
	case "mongodb":
		if c.MongoURI == "" || c.MongoDatabase == "" || c.MongoCollection == "" {
			return fmt.Errorf("mongodb uri, database and collection are required")
		}
	case "dynamodb":
		if c.DynamoDBTable == "" {
			return fmt.Errorf("dynamodb table cannot be empty")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (valid: memory, sqlite, postgres, mongodb, dynamodb)", c.StorageType)
	}

	return nil
}

// APIKeyList returns the configured, non-empty API keys
func (c *Config) APIKeyList() []string {
	var keys []string
	for _, k := range strings.Split(c.APIKeys, ",") {
		if kk := strings.TrimSpace(k); kk != "" {
			keys = append(keys, kk)
		}
	}
	return keys
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
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
