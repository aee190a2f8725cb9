package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv    string
	Port       string
	JWTSecret  string
	InstanceID string
	Database   DatabaseConfig
	Remote     RemoteConfig
	Storage    StorageConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool
}

// RemoteConfig holds connection settings for the maintenance backend
type RemoteConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

// StorageConfig holds the device storage roots used by diagnostics
type StorageConfig struct {
	CacheDir      string
	PersistentDir string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		NodeEnv:    getEnv("NODE_ENV", "development"),
		Port:       getEnv("PORT", "3001"),
		JWTSecret:  jwtSecret,
		InstanceID: getEnv("INSTANCE_ID", "dev-instance"),
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "fieldsync"),
			Alter:    getEnv("DB_ALTER", "false") == "true",
		},
		Remote: RemoteConfig{
			URL:      os.Getenv("REMOTE_URL"),
			Database: getEnv("REMOTE_DATABASE", "maintenance"),
			Username: os.Getenv("REMOTE_USERNAME"),
			Password: os.Getenv("REMOTE_PASSWORD"),
		},
		Storage: StorageConfig{
			CacheDir:      getEnv("CACHE_DIR", "./cache"),
			PersistentDir: getEnv("DATA_DIR", "./data"),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv gets a boolean environment variable with default value
func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1"
}

// getIntEnv gets an integer environment variable with default value
func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return defaultValue
}
