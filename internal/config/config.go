package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strings"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the runtime configuration of the HTTP server.  Each field
// corresponds to an environment variable.
type Config struct {
	StoreConfig
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	LogLevel  string // zap level name, empty for info
	JWTSecret string // secret used to verify access tokens
	RabbitURL string // broker for booking events; empty disables publishing
}

// StoreConfig selects and locates the booking store.
type StoreConfig struct {
	Driver      string // mysql, postgres or memory
	DBUser      string // MySQL username
	DBPass      string // MySQL password (optional)
	DBHost      string // MySQL host address
	DBPort      string // MySQL port number
	DBName      string // MySQL database name
	DatabaseURL string // Postgres connection URL
	Migrate     bool   // apply embedded migrations on start
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		StoreConfig: LoadStoreConfig(),
		Env:         must("APP_ENV"),
		Port:        must("APP_PORT"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		JWTSecret:   must("JWT_SECRET"),
		RabbitURL:   os.Getenv("RABBITMQ_URL"),
	}
}

// LoadStoreConfig reads STORE_DRIVER and the variables that driver needs.
// Database variables of other drivers are not required.
func LoadStoreConfig() StoreConfig {
	cfg := StoreConfig{
		Driver:  strings.ToLower(envStr("STORE_DRIVER", DriverMySQL)),
		Migrate: envBool("DB_MIGRATE", true),
	}
	switch cfg.Driver {
	case DriverMySQL:
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	case DriverPostgres:
		cfg.DatabaseURL = must("DATABASE_URL")
	case DriverMemory:
	default:
		log.Fatalf("invalid STORE_DRIVER: %q", cfg.Driver)
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
