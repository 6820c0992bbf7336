// Package config loads process configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends
const (
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
	StoreRedis     = "redis"
	StoreMemory    = "memory"
)

// Directory backends
const (
	DirectoryFirebase = "firebase"
	DirectoryMemory   = "memory"
)

// Routers
const (
	RouterGin   = "gin"
	RouterEcho  = "echo"
	RouterFiber = "fiber"
	RouterChi   = "chi"
	RouterMux   = "mux"
	RouterHTTP  = "http"
)

// Config is the process configuration
type Config struct {
	Port string

	CredentialsFile string
	ProjectID       string

	StoreBackend     string
	DirectoryBackend string
	Router           string

	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CustomersCollection   string
	RoleClaim             string
	ProvisionMissingUsers bool

	LogLevel  string
	LogFormat string

	MetricsNamespace string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Load reads envFile when it exists, then the process environment.
// An empty envFile skips the file. Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	if err := v.BindEnv("CREDENTIALS_FILE", "FIREBASE_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS"); err != nil {
		return nil, fmt.Errorf("failed to bind credentials env: %w", err)
	}

	cfg := &Config{
		Port:                  v.GetString("PORT"),
		CredentialsFile:       v.GetString("CREDENTIALS_FILE"),
		ProjectID:             v.GetString("FIREBASE_PROJECT_ID"),
		StoreBackend:          strings.ToLower(v.GetString("STORE_BACKEND")),
		DirectoryBackend:      strings.ToLower(v.GetString("DIRECTORY_BACKEND")),
		Router:                strings.ToLower(v.GetString("ROUTER")),
		PostgresDSN:           v.GetString("POSTGRES_DSN"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		CustomersCollection:   v.GetString("CUSTOMERS_COLLECTION"),
		RoleClaim:             v.GetString("ROLE_CLAIM"),
		ProvisionMissingUsers: v.GetBool("PROVISION_MISSING_USERS"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		LogFormat:             v.GetString("LOG_FORMAT"),
		MetricsNamespace:      v.GetString("METRICS_NAMESPACE"),
		ReadTimeout:           v.GetDuration("HTTP_READ_TIMEOUT"),
		WriteTimeout:          v.GetDuration("HTTP_WRITE_TIMEOUT"),
		ShutdownTimeout:       v.GetDuration("SHUTDOWN_TIMEOUT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "9000")
	v.SetDefault("STORE_BACKEND", StoreFirestore)
	v.SetDefault("DIRECTORY_BACKEND", DirectoryFirebase)
	v.SetDefault("ROUTER", RouterGin)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CUSTOMERS_COLLECTION", "customers")
	v.SetDefault("ROLE_CLAIM", "role")
	v.SetDefault("PROVISION_MISSING_USERS", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("METRICS_NAMESPACE", "billingsync")
	v.SetDefault("HTTP_READ_TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 15*time.Second)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	switch c.StoreBackend {
	case StoreFirestore, StoreMemory, StoreRedis:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.DirectoryBackend {
	case DirectoryFirebase, DirectoryMemory:
	default:
		return fmt.Errorf("unknown DIRECTORY_BACKEND %q", c.DirectoryBackend)
	}

	switch c.Router {
	case RouterGin, RouterEcho, RouterFiber, RouterChi, RouterMux, RouterHTTP:
	default:
		return fmt.Errorf("unknown ROUTER %q", c.Router)
	}

	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// NeedsFirebase reports whether a Firebase app must be initialized
func (c *Config) NeedsFirebase() bool {
	return c.StoreBackend == StoreFirestore || c.DirectoryBackend == DirectoryFirebase
}
