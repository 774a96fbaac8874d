// Package config loads the stockroom configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverRedis    = "redis"
)

// Auth modes.
const (
	AuthFirebase = "firebase"
	AuthStatic   = "static"
)

// Config is the root of the configuration file.
type Config struct {
	Server    Server    `yaml:"server"`
	Storage   Storage   `yaml:"storage"`
	Auth      Auth      `yaml:"auth"`
	Log       Log       `yaml:"log"`
	Telemetry Telemetry `yaml:"telemetry"`
}

type Server struct {
	Addr               string        `yaml:"addr"`
	PublicBaseURL      string        `yaml:"public_base_url"`
	PublicReads        bool          `yaml:"public_reads"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	WriteRateLimit     float64       `yaml:"write_rate_limit"` // requests per second, 0 disables
	WriteBurst         int           `yaml:"write_burst"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
}

type Storage struct {
	Driver string `yaml:"driver"`
	// DSN is the connection string: a SQL DSN, a mongodb:// URI or a redis
	// host:port.
	DSN            string        `yaml:"dsn"`
	Database       string        `yaml:"database"` // mongo database name
	Password       string        `yaml:"password"` // redis
	RedisDB        int           `yaml:"redis_db"`
	PageSize       int           `yaml:"page_size"`
	Seed           bool          `yaml:"seed"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type Auth struct {
	Mode      string `yaml:"mode"`
	ProjectID string `yaml:"project_id"`
	CertsURL  string `yaml:"certs_url"`
	// TokenHash and TokenSalt are the base64 argon2id digest and salt of
	// the shared token accepted in static mode.
	TokenHash string `yaml:"token_hash"`
	TokenSalt string `yaml:"token_salt"`
}

type Log struct {
	Verbosity int `yaml:"verbosity"`
}

type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:               ":8080",
			CORSAllowedOrigins: []string{"*"},
			WriteRateLimit:     50,
			WriteBurst:         100,
			ShutdownTimeout:    5 * time.Second,
		},
		Storage: Storage{
			Driver:         DriverMemory,
			Database:       "stockroom",
			PageSize:       50,
			Seed:           true,
			ConnectTimeout: 30 * time.Second,
		},
		Auth: Auth{
			Mode: AuthFirebase,
		},
		Telemetry: Telemetry{
			ServiceName: "stockroom",
		},
	}
}

// Load reads path over the defaults (an empty path skips the file), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if port, ok := os.LookupEnv("PORT"); ok {
		c.Server.Addr = ":" + port
	}
	c.Server.Addr = getEnv("STOCKROOM_ADDR", c.Server.Addr)
	c.Server.PublicBaseURL = getEnv("STOCKROOM_PUBLIC_BASE_URL", c.Server.PublicBaseURL)

	c.Storage.Driver = getEnv("STOCKROOM_STORAGE_DRIVER", c.Storage.Driver)
	switch c.Storage.Driver {
	case DriverPostgres, DriverMySQL:
		c.Storage.DSN = getEnv("DATABASE_URL", c.Storage.DSN)
	case DriverMongo:
		c.Storage.DSN = getEnv("MONGO_URI", c.Storage.DSN)
	case DriverRedis:
		c.Storage.DSN = getEnv("REDIS_ADDR", c.Storage.DSN)
	}

	c.Auth.Mode = getEnv("STOCKROOM_AUTH_MODE", c.Auth.Mode)
	c.Auth.ProjectID = getEnv("FIREBASE_PROJECT_ID", c.Auth.ProjectID)

	c.Telemetry.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
}

// Validate reports the first inconsistency in the configuration.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.WriteRateLimit < 0 || c.Server.WriteBurst < 0 {
		return errors.New("server.write_rate_limit and server.write_burst must not be negative")
	}
	if c.Server.WriteRateLimit > 0 && c.Server.WriteBurst == 0 {
		return errors.New("server.write_burst must be positive when rate limiting is enabled")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverMongo, DriverPostgres, DriverMySQL, DriverRedis:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage.driver %q (want one of %s)", c.Storage.Driver,
			strings.Join([]string{DriverMemory, DriverMongo, DriverPostgres, DriverMySQL, DriverRedis}, ", "))
	}
	if c.Storage.PageSize <= 0 {
		return errors.New("storage.page_size must be positive")
	}

	switch c.Auth.Mode {
	case AuthFirebase:
		if c.Auth.ProjectID == "" {
			return errors.New("auth.project_id is required in firebase mode")
		}
	case AuthStatic:
		if c.Auth.TokenHash == "" || c.Auth.TokenSalt == "" {
			return errors.New("auth.token_hash and auth.token_salt are required in static mode")
		}
	default:
		return fmt.Errorf("unknown auth.mode %q", c.Auth.Mode)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
