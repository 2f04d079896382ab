package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Auth    AuthConfig
	Storage StorageConfig
	CORS    CORSConfig
	Deploy  DeployConfig
	Cleanup CleanupConfig
}

type ServerConfig struct {
	Host string
	Port string
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DBConfig struct {
	Driver     string
	Host       string
	Port       string
	Name       string
	User       string
	Password   string
	SSLMode    string
	SQLitePath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

type AuthConfig struct {
	JWTSecret     string
	JWTExpiry     time.Duration
	AdminUser     string
	AdminPassword string
}

type StorageConfig struct {
	Path string
}

type CORSConfig struct {
	AllowedOrigins string
}

// DeployConfig bounds each suspension point of a deployment run and
// addresses the device transports.
type DeployConfig struct {
	OpenTimeout   time.Duration
	AckTimeout    time.Duration
	ResultTimeout time.Duration
	DevicePort    int
	SerialBaud    int
}

type CleanupConfig struct {
	Interval time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: envOrDefault("TETHER_HOST", "0.0.0.0"),
			Port: envOrDefault("TETHER_PORT", "8080"),
		},
		DB: DBConfig{
			Driver:     envOrDefault("TETHER_DB_DRIVER", DriverSQLite),
			Host:       envOrDefault("TETHER_DB_HOST", "localhost"),
			Port:       envOrDefault("TETHER_DB_PORT", "5432"),
			Name:       envOrDefault("TETHER_DB_NAME", "tether"),
			User:       envOrDefault("TETHER_DB_USER", "tether"),
			Password:   envOrDefault("TETHER_DB_PASSWORD", "tether"),
			SSLMode:    envOrDefault("TETHER_DB_SSLMODE", "disable"),
			SQLitePath: envOrDefault("TETHER_SQLITE_PATH", "tether.db"),
		},
		Auth: AuthConfig{
			JWTSecret:     envOrDefault("TETHER_JWT_SECRET", "change-me-in-production"),
			AdminUser:     envOrDefault("TETHER_ADMIN_USER", "admin"),
			AdminPassword: os.Getenv("TETHER_ADMIN_PASSWORD"),
		},
		Storage: StorageConfig{
			Path: envOrDefault("TETHER_STORAGE_PATH", "/data/payloads"),
		},
		CORS: CORSConfig{
			AllowedOrigins: envOrDefault("TETHER_CORS_ORIGINS", "http://localhost:3000"),
		},
	}

	durations := []struct {
		key, def string
		dst      *time.Duration
	}{
		{"TETHER_JWT_EXPIRY", "24h", &cfg.Auth.JWTExpiry},
		{"TETHER_OPEN_TIMEOUT", "10s", &cfg.Deploy.OpenTimeout},
		{"TETHER_ACK_TIMEOUT", "5s", &cfg.Deploy.AckTimeout},
		{"TETHER_RESULT_TIMEOUT", "60s", &cfg.Deploy.ResultTimeout},
		{"TETHER_CLEANUP_INTERVAL", "1h", &cfg.Cleanup.Interval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(envOrDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", d.key)
		}
		*d.dst = v
	}

	var err error
	if cfg.Deploy.DevicePort, err = intOrDefault("TETHER_DEVICE_PORT", 4242); err != nil {
		return nil, err
	}
	if cfg.Deploy.SerialBaud, err = intOrDefault("TETHER_SERIAL_BAUD", 115200); err != nil {
		return nil, err
	}

	switch cfg.DB.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("invalid TETHER_DB_DRIVER %q: want %s or %s", cfg.DB.Driver, DriverPostgres, DriverSQLite)
	}

	return cfg, nil
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intOrDefault(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}
