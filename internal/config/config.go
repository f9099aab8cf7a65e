package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultReservationTTLSeconds = 30

// Storage drivers understood by storage.Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverDynamoDB = "dynamodb"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Mailchimp    MailchimpConfig    `yaml:"mailchimp"`
	Registration RegistrationConfig `yaml:"registration"`
	CORS         CORSConfig         `yaml:"cors"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                   int    `yaml:"port"`
	Host                   string `yaml:"host"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for net/http.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// ShutdownTimeout returns the graceful shutdown deadline.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// StorageConfig selects and configures the signup store backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // postgres, sqlite, redis, dynamodb
	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`
	// ReservationTTLSeconds applies to the postgres and sqlite drivers.
	ReservationTTLSeconds int            `yaml:"reservation_ttl_seconds"`
	Redis                 RedisConfig    `yaml:"redis"`
	DynamoDB              DynamoDBConfig `yaml:"dynamodb"`
}

// ReservationTTL returns how long an uncommitted SQL reservation holds its email.
func (c StorageConfig) ReservationTTL() time.Duration {
	return time.Duration(c.ReservationTTLSeconds) * time.Second
}

// RedisConfig holds Redis store settings.
type RedisConfig struct {
	URL                   string `yaml:"url"`
	KeyPrefix             string `yaml:"key_prefix"`
	ReservationTTLSeconds int    `yaml:"reservation_ttl_seconds"`
}

// ReservationTTL returns how long an uncommitted email claim survives.
func (c RedisConfig) ReservationTTL() time.Duration {
	return time.Duration(c.ReservationTTLSeconds) * time.Second
}

// DynamoDBConfig holds DynamoDB store settings.
type DynamoDBConfig struct {
	Table                 string `yaml:"table"`
	StatusTable           string `yaml:"status_table"`
	Region                string `yaml:"region"`
	Endpoint              string `yaml:"endpoint"` // e.g. http://localhost:8000 for DynamoDB Local
	Profile               string `yaml:"profile"`  // Empty string uses default credential chain
	AccessKey             string `yaml:"access_key"`
	SecretKey             string `yaml:"secret_key"`
	ReservationTTLSeconds int    `yaml:"reservation_ttl_seconds"`
}

// ReservationTTL returns how long an uncommitted email claim survives.
func (c DynamoDBConfig) ReservationTTL() time.Duration {
	return time.Duration(c.ReservationTTLSeconds) * time.Second
}

// MailchimpConfig holds Mailchimp Marketing API configuration
type MailchimpConfig struct {
	APIKey         string `yaml:"api_key"`
	ServerPrefix   string `yaml:"server_prefix"` // e.g. "us21"
	AudienceID     string `yaml:"audience_id"`
	BaseURL        string `yaml:"base_url"` // overrides the URL derived from ServerPrefix
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Enabled reports whether enough is configured to push members.
func (c MailchimpConfig) Enabled() bool {
	return c.APIKey != "" && c.AudienceID != "" && (c.ServerPrefix != "" || c.BaseURL != "")
}

// APIBaseURL returns the versioned API root.
func (c MailchimpConfig) APIBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return fmt.Sprintf("https://%s.api.mailchimp.com/3.0", c.ServerPrefix)
}

// Timeout returns the configured timeout as a duration
func (c MailchimpConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RegistrationConfig bounds the work done after an email is reserved.
type RegistrationConfig struct {
	SyncTimeoutSeconds   int `yaml:"sync_timeout_seconds"`
	CommitTimeoutSeconds int `yaml:"commit_timeout_seconds"`
	StoreTimeoutSeconds  int `yaml:"store_timeout_seconds"`
}

// SyncTimeout returns the ceiling for the member sync call.
func (c RegistrationConfig) SyncTimeout() time.Duration {
	return time.Duration(c.SyncTimeoutSeconds) * time.Second
}

// CommitTimeout returns the ceiling for committing a reservation.
func (c RegistrationConfig) CommitTimeout() time.Duration {
	return time.Duration(c.CommitTimeoutSeconds) * time.Second
}

// StoreTimeout returns the ceiling for each store read and for Reserve.
func (c RegistrationConfig) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}

// CORSConfig holds allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level   string `yaml:"level"`
	ShowPII bool   `yaml:"show_pii"` // disables email redaction; local debugging only
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	cfg, err := parse(path)
	if err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return cfg, nil
}

func parse(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 10
	}
	if cfg.Storage.Driver == "" {
		if cfg.Storage.DatabaseURL != "" {
			cfg.Storage.Driver = DriverPostgres
		} else {
			cfg.Storage.Driver = DriverSQLite
		}
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/waitlist.db"
	}
	if cfg.Storage.ReservationTTLSeconds == 0 {
		cfg.Storage.ReservationTTLSeconds = defaultReservationTTLSeconds
	}
	if cfg.Storage.Redis.KeyPrefix == "" {
		cfg.Storage.Redis.KeyPrefix = "waitlist"
	}
	if cfg.Storage.Redis.ReservationTTLSeconds == 0 {
		cfg.Storage.Redis.ReservationTTLSeconds = defaultReservationTTLSeconds
	}
	if cfg.Storage.DynamoDB.Region == "" {
		cfg.Storage.DynamoDB.Region = "us-east-1"
	}
	if cfg.Storage.DynamoDB.Table == "" {
		cfg.Storage.DynamoDB.Table = "waitlist_signups"
	}
	if cfg.Storage.DynamoDB.StatusTable == "" {
		cfg.Storage.DynamoDB.StatusTable = "waitlist_status_checks"
	}
	if cfg.Storage.DynamoDB.ReservationTTLSeconds == 0 {
		cfg.Storage.DynamoDB.ReservationTTLSeconds = defaultReservationTTLSeconds
	}
	if cfg.Mailchimp.TimeoutSeconds == 0 {
		cfg.Mailchimp.TimeoutSeconds = 5
	}
	if cfg.Registration.SyncTimeoutSeconds == 0 {
		cfg.Registration.SyncTimeoutSeconds = 5
	}
	if cfg.Registration.CommitTimeoutSeconds == 0 {
		cfg.Registration.CommitTimeoutSeconds = 5
	}
	if cfg.Registration.StoreTimeoutSeconds == 0 {
		cfg.Registration.StoreTimeoutSeconds = 5
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks that the selected storage driver has what it needs and
// that its reservations outlive the work done while they are held.
func (cfg *Config) Validate() error {
	var ttl int
	switch cfg.Storage.Driver {
	case DriverPostgres:
		if cfg.Storage.DatabaseURL == "" {
			return errors.New("storage.database_url (DATABASE_URL) is required for the postgres driver")
		}
		ttl = cfg.Storage.ReservationTTLSeconds
	case DriverSQLite:
		if cfg.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite driver")
		}
		ttl = cfg.Storage.ReservationTTLSeconds
	case DriverRedis:
		if cfg.Storage.Redis.URL == "" {
			return errors.New("storage.redis.url (REDIS_URL) is required for the redis driver")
		}
		ttl = cfg.Storage.Redis.ReservationTTLSeconds
	case DriverDynamoDB:
		if cfg.Storage.DynamoDB.Table == "" {
			return errors.New("storage.dynamodb.table is required for the dynamodb driver")
		}
		ttl = cfg.Storage.DynamoDB.ReservationTTLSeconds
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	return cfg.validateReservationTTL(ttl)
}

// validateReservationTTL rejects a TTL that a slow sync plus commit could
// outlive. Zero values stand for the defaults the stores and services apply.
func (cfg *Config) validateReservationTTL(ttl int) error {
	if ttl < 0 {
		return fmt.Errorf("reservation TTL must not be negative, got %ds", ttl)
	}
	ttl = orDefault(ttl, defaultReservationTTLSeconds)
	sync := orDefault(cfg.Registration.SyncTimeoutSeconds, 5)
	commit := orDefault(cfg.Registration.CommitTimeoutSeconds, 5)
	if ttl <= sync+commit {
		return fmt.Errorf("reservation TTL %ds must exceed sync timeout %ds + commit timeout %ds", ttl, sync, commit)
	}
	return nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
// A missing config file is not an error: defaults plus environment apply.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := parse(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &Config{}
	} else if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Storage overrides
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Storage.Redis.URL = v
	}
	if v := os.Getenv("DYNAMODB_TABLE"); v != "" {
		cfg.Storage.DynamoDB.Table = v
	}
	if v := os.Getenv("DYNAMODB_STATUS_TABLE"); v != "" {
		cfg.Storage.DynamoDB.StatusTable = v
	}
	if v := os.Getenv("DYNAMODB_ENDPOINT"); v != "" {
		cfg.Storage.DynamoDB.Endpoint = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.DynamoDB.Region = v
	}

	// Mailchimp overrides
	if v := os.Getenv("MAILCHIMP_API_KEY"); v != "" {
		cfg.Mailchimp.APIKey = v
	}
	if v := os.Getenv("MAILCHIMP_SERVER_PREFIX"); v != "" {
		cfg.Mailchimp.ServerPrefix = v
	}
	if v := os.Getenv("MAILCHIMP_AUDIENCE_ID"); v != "" {
		cfg.Mailchimp.AudienceID = v
	}

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORS.AllowedOrigins = origins
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	cfg.setDefaults()
	return cfg, nil
}
