package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendGCS      = "gcs"
)

type (
	// Config represents an application configuration.
	Config struct {
		// Subconfigs.
		HTTPServer  HTTPServer  `yaml:"http_server"`
		Logger      Logger      `yaml:"logger"`
		JWT         JWT         `yaml:"jwt"`
		Admin       Admin       `yaml:"admin"`
		Storage     Storage     `yaml:"storage"`
		Attachments Attachments `yaml:"attachments"`
		RateLimit   RateLimit   `yaml:"rate_limit"`
		Events      Events      `yaml:"events"`
		CORS        CORS        `yaml:"cors"`
	}
	// Config for HTTP server.
	HTTPServer struct {
		// The server startup address.
		Address string `yaml:"run_address" env:"RUN_ADDRESS" env-default:"127.0.0.1:8080"`
		// Read header timeout.
		Timeout time.Duration `yaml:"timeout" env-default:"5s"`
		// Idle timeout.
		IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
		// Shutdown timeout.
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
	}
	// Config for application's logger.
	Logger struct {
		// Path to store log files. Stdout is used when empty.
		Path string `yaml:"path" env:"LOG_PATH"`
		// Application logging level.
		Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
		// Log files details.
		MaxSizeMB  int `yaml:"max_size_mb" env-default:"100"`
		MaxBackups int `yaml:"max_backups" env-default:"3"`
		MaxAgeDays int `yaml:"max_age_days" env-default:"28"`
	}
	// Config for JWT.
	JWT struct {
		// JWT signing key.
		SigningKey string `yaml:"signing_key" env:"JWT_SIGNING_KEY"`
		// JWT expiration.
		Expiration time.Duration `yaml:"expiration" env:"JWT_EXPIRATION" env-default:"12h"`
	}
	// Admin accounts allowed into the admin panel.
	Admin struct {
		Accounts []AdminAccount `yaml:"accounts"`
	}
	// AdminAccount holds a login and its bcrypt password hash.
	AdminAccount struct {
		Login        string `yaml:"login"`
		PasswordHash string `yaml:"password_hash"`
	}
	// Config for the key/blob storage backend.
	Storage struct {
		// One of memory, postgres, redis, gcs.
		Backend  string   `yaml:"backend" env:"STORAGE_BACKEND" env-default:"memory"`
		Postgres Postgres `yaml:"postgres"`
		Redis    Redis    `yaml:"redis"`
		GCS      GCS      `yaml:"gcs"`
	}
	Postgres struct {
		// The data source name (DSN) for connecting to the database.
		DSN string `yaml:"dsn" env:"DATABASE_URI"`
	}
	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"127.0.0.1:6379"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
		// Namespace prepended to every key.
		Namespace string `yaml:"namespace" env-default:"nairabulk"`
	}
	GCS struct {
		Bucket string `yaml:"bucket" env:"GCS_BUCKET"`
		// Object name prefix inside the bucket.
		Prefix string `yaml:"prefix"`
		// Base of public object URLs.
		PublicBaseURL string `yaml:"public_base_url" env-default:"https://storage.googleapis.com"`
		// Service account key file. Application default credentials when empty.
		CredentialsFile string `yaml:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
	}
	// Limits for uploaded screenshots and payment proofs.
	Attachments struct {
		MaxSizeBytes int64    `yaml:"max_size_bytes" env-default:"4194304"`
		AllowedTypes []string `yaml:"allowed_types" env-default:"image/png,image/jpeg,image/webp"`
	}
	// Throttling of public order submissions.
	RateLimit struct {
		Interval time.Duration `yaml:"interval" env-default:"1s"`
		Burst    int           `yaml:"burst" env-default:"10"`
	}
	// Lifecycle events publishing. Disabled when AMQPURL is empty.
	Events struct {
		AMQPURL  string `yaml:"amqp_url" env:"AMQP_URL"`
		Exchange string `yaml:"exchange" env-default:"orders"`
	}
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
	}
)

// MustLoad returns an application configuration which is populated
// from the given configuration file, environment variables and flags.
func MustLoad() *Config {
	configPath := flag.String("config", "./config/local.yml", "path to the config file")
	address := flag.String("a", "", "server startup address")
	dsn := flag.String("d", "", "database data source name")
	backend := flag.String("s", "", "storage backend: memory, postgres, redis or gcs")
	flag.Parse()

	cfg, err := Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	// Flags win over the file, environment wins over flags.
	if *address != "" {
		cfg.HTTPServer.Address = *address
	}
	if *dsn != "" {
		cfg.Storage.Postgres.DSN = *dsn
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}
	if err = cleanenv.ReadEnv(cfg); err != nil {
		log.Fatalf("failed to read environment variables: %v", err)
	}
	if err = cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	return cfg
}

// Load reads configuration from the YAML file at path, filling defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate reports configuration the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return errors.New("config: postgres backend requires storage.postgres.dsn")
		}
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return errors.New("config: redis backend requires storage.redis.addr")
		}
	case BackendGCS:
		if c.Storage.GCS.Bucket == "" {
			return errors.New("config: gcs backend requires storage.gcs.bucket")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	if c.JWT.SigningKey == "" {
		return errors.New("config: jwt.signing_key is required")
	}
	if c.Attachments.MaxSizeBytes <= 0 {
		return errors.New("config: attachments.max_size_bytes must be positive")
	}

	return nil
}
