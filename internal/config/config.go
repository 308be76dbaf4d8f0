package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	MongoDB  MongoDBConfig
	Registry RegistryConfig
	Sheets   SheetsConfig
	Redis    RedisConfig
	Reading  ReadingConfig
	Client   ClientConfig
	Log      LogConfig
}

// LogConfig holds the log levels of the server and the field client.
type LogConfig struct {
	Level       string
	ClientLevel string
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// StoreConfig selects the persistent session store backend.
type StoreConfig struct {
	Driver string // "mongodb" or "memory"
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// RegistryConfig configures the external asset registry adapter.
type RegistryConfig struct {
	Driver  string // "http" or "sheets"
	BaseURL string
	Token   string
	Timeout time.Duration
}

// SheetsConfig contains configuration required to use a Google spreadsheet
// as the asset registry.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	AssetsRange     string
	ResultsRange    string
}

// RedisConfig enables the distributed sync gate when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	LockTTL  time.Duration
}

// ReadingConfig holds device reading session settings.
type ReadingConfig struct {
	DefaultTimeout      time.Duration
	MaxTimeout          time.Duration
	ExpirySweepSchedule string
	DeviceLinkScheme    string
}

// ClientConfig holds settings of the field client.
type ClientConfig struct {
	APIBaseURL       string
	UserID           string
	PollInterval     time.Duration
	OfflineCacheSize int
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	cfg, err := load(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClient reads the configuration of the field client, which needs
// neither a store nor a registry.
func LoadClient(envFile string) (*Config, error) {
	cfg, err := load(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Store: StoreConfig{
			Driver: getenvWithDefault("STORE_DRIVER", "mongodb"),
		},
		MongoDB: MongoDBConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "fieldinventory"),
		},
		Registry: RegistryConfig{
			Driver:  getenvWithDefault("REGISTRY_DRIVER", "http"),
			BaseURL: os.Getenv("REGISTRY_BASE_URL"),
			Token:   os.Getenv("REGISTRY_TOKEN"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_REGISTRY_ID"),
			AssetsRange:     getenvWithDefault("REGISTRY_ASSETS_RANGE", "Assets!A:H"),
			ResultsRange:    getenvWithDefault("REGISTRY_RESULTS_RANGE", "Results!A:G"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Reading: ReadingConfig{
			ExpirySweepSchedule: getenvWithDefault("EXPIRY_SWEEP_SCHEDULE", "@every 1m"),
			DeviceLinkScheme:    getenvWithDefault("DEVICE_LINK_SCHEME", "inventario"),
		},
		Log: LogConfig{
			Level:       getenvWithDefault("LOG_LEVEL", "info"),
			ClientLevel: getenvWithDefault("FIELD_LOG_LEVEL", "warn"),
		},
		Client: ClientConfig{
			APIBaseURL: getenvWithDefault("API_BASE_URL", "http://localhost:8080"),
			UserID:     os.Getenv("FIELD_USER_ID"),
		},
	}

	var err error
	if cfg.Registry.Timeout, err = durationWithDefault("REGISTRY_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Redis.LockTTL, err = durationWithDefault("SYNC_LOCK_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Reading.DefaultTimeout, err = durationWithDefault("READING_DEFAULT_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Reading.MaxTimeout, err = durationWithDefault("READING_MAX_TIMEOUT", time.Hour); err != nil {
		return nil, err
	}
	if cfg.Client.PollInterval, err = durationWithDefault("POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.Client.OfflineCacheSize, err = intWithDefault("OFFLINE_CACHE_SIZE", 256); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch c.Store.Driver {
	case "memory":
	case "mongodb":
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI must be provided")
		}
		if c.MongoDB.DBName == "" {
			return errors.New("MONGODB_DB_NAME must be provided")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.Registry.Driver {
	case "http":
		if c.Registry.BaseURL == "" {
			return errors.New("REGISTRY_BASE_URL must be provided")
		}
	case "sheets":
		if c.Sheets.CredentialsPath == "" {
			return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH must be provided")
		}
		if c.Sheets.SpreadsheetID == "" {
			return errors.New("GOOGLE_SHEET_REGISTRY_ID must be provided")
		}
	default:
		return fmt.Errorf("unsupported REGISTRY_DRIVER %q", c.Registry.Driver)
	}

	if c.Reading.DefaultTimeout <= 0 {
		return errors.New("READING_DEFAULT_TIMEOUT must be positive")
	}
	if c.Reading.MaxTimeout < c.Reading.DefaultTimeout {
		return errors.New("READING_MAX_TIMEOUT must not be lower than READING_DEFAULT_TIMEOUT")
	}
	if c.Reading.ExpirySweepSchedule == "" {
		return errors.New("EXPIRY_SWEEP_SCHEDULE must be provided")
	}
	return nil
}

// ValidateClient ensures the field client settings are usable.
func (c *Config) ValidateClient() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Client.APIBaseURL == "" {
		return errors.New("API_BASE_URL must be provided")
	}
	if c.Client.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if c.Client.OfflineCacheSize <= 0 {
		return errors.New("OFFLINE_CACHE_SIZE must be positive")
	}
	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intWithDefault(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
