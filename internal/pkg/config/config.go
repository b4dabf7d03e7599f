package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

//Backend names for the shift log
const (
	BackendCSV      = "csv"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Model     ModelConfig
	Providers ProviderConfig
	Auth      AuthConfig
	Messaging MessagingConfig
}

type ServerConfig struct {
	Port string
}

type StorageConfig struct {
	DataDir string
	Backend string
}

type DatabaseConfig struct {
	SQLitePath string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SSLMode    string
}

//GetDSN returns the PostgreSQL connection string
func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type ModelConfig struct {
	//MinTrainingRecords is the hard floor below which training is refused
	MinTrainingRecords int
	//TrafficThreshold is the congestion value above which traffic counts as heavy
	TrafficThreshold float64
	Trees            int
	Seed             int64
}

type ProviderConfig struct {
	OpenWeatherAPIKey string
	GoogleMapsAPIKey  string
	Timeout           time.Duration
	RedisURL          string
	CacheTTL          time.Duration
}

//DefaultJWTSecret is only fit for local development
const DefaultJWTSecret = "change-me-in-production"

type AuthConfig struct {
	JWTSecret   string
	TokenExpiry time.Duration
}

//UsesDefaultSecret reports whether tokens would be signed with DefaultJWTSecret
func (a AuthConfig) UsesDefaultSecret() bool {
	return a.JWTSecret == DefaultJWTSecret
}

type MessagingConfig struct {
	Enabled bool
}

//LoadConfig reads the configuration from the environment
func LoadConfig() (*Config, error) {
	dbPort, err := getIntEnv("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_PORT: %w", err)
	}

	minRecords, err := getIntEnv("MIN_TRAINING_RECORDS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_TRAINING_RECORDS: %w", err)
	}
	if minRecords < 1 {
		return nil, fmt.Errorf("invalid MIN_TRAINING_RECORDS: must be positive, got %d", minRecords)
	}

	threshold, err := getFloatEnv("TRAFFIC_THRESHOLD", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid TRAFFIC_THRESHOLD: %w", err)
	}

	trees, err := getIntEnv("FOREST_TREES", 100)
	if err != nil {
		return nil, fmt.Errorf("invalid FOREST_TREES: %w", err)
	}
	if trees < 1 {
		return nil, fmt.Errorf("invalid FOREST_TREES: must be positive, got %d", trees)
	}

	seed, err := getIntEnv("FOREST_SEED", 42)
	if err != nil {
		return nil, fmt.Errorf("invalid FOREST_SEED: %w", err)
	}

	timeoutSec, err := getIntEnv("PROVIDER_TIMEOUT_SEC", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_TIMEOUT_SEC: %w", err)
	}

	cacheTTLMin, err := getIntEnv("CONTEXT_CACHE_TTL_MIN", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid CONTEXT_CACHE_TTL_MIN: %w", err)
	}

	expiryH, err := getIntEnv("TOKEN_TTL_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL_HOURS: %w", err)
	}

	backend := strings.ToLower(getEnv("SHIFTLOG_BACKEND", BackendCSV))
	switch backend {
	case BackendCSV, BackendSQLite, BackendPostgres:
	default:
		return nil, fmt.Errorf("invalid SHIFTLOG_BACKEND %q", backend)
	}

	dataDir := getEnv("SHIFTADVISOR_DATA_DIR", "./data")

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SHIFTADVISOR_API_PORT", "8484"),
		},
		Storage: StorageConfig{
			DataDir: dataDir,
			Backend: backend,
		},
		Database: DatabaseConfig{
			SQLitePath: getEnv("SQLITE_PATH", dataDir+"/shifts.db"),
			Host:       getEnv("POSTGRES_HOST", "localhost"),
			Port:       dbPort,
			User:       getEnv("POSTGRES_USER", "shiftadvisor"),
			Password:   getEnv("POSTGRES_PASSWORD", "shiftadvisor_dev_password"),
			Name:       getEnv("POSTGRES_DBNAME", "shiftadvisor"),
			SSLMode:    getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Model: ModelConfig{
			MinTrainingRecords: minRecords,
			TrafficThreshold:   threshold,
			Trees:              trees,
			Seed:               int64(seed),
		},
		Providers: ProviderConfig{
			OpenWeatherAPIKey: getEnv("OPENWEATHER_API_KEY", ""),
			GoogleMapsAPIKey:  getEnv("GOOGLE_MAPS_API_KEY", ""),
			Timeout:           time.Duration(timeoutSec) * time.Second,
			RedisURL:          getEnv("REDIS_URL", ""),
			CacheTTL:          time.Duration(cacheTTLMin) * time.Minute,
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", DefaultJWTSecret),
			TokenExpiry: time.Duration(expiryH) * time.Hour,
		},
		Messaging: MessagingConfig{
			Enabled: getBoolEnv("RABBITMQ_ENABLED", false),
		},
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	return strconv.Atoi(val)
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(val, 64)
}

func getBoolEnv(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
