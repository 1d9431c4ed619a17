package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	defaultLocale       = "en"
	defaultCooldown     = time.Second
	defaultHTTPTimeout  = 10 * time.Second
	defaultStationAddr  = ":8085"
	defaultJournalType  = "sqlite"
	defaultJournalURL   = "file:checkin.db"
	defaultExchange     = "tixie"
	defaultLogLevel     = "info"
	defaultTokenDirName = ".tixie"
)

// ErrAPIURLRequired is returned by Validate when no backend URL is configured.
var ErrAPIURLRequired = errors.New("API_URL environment variable is required")

// Config holds the settings shared by the station, the CLI and the mock backend.
type Config struct {
	APIURL         string        `yaml:"api_url"`
	Locale         string        `yaml:"locale"`
	TokenFile      string        `yaml:"token_file"`
	ScanCooldown   time.Duration `yaml:"scan_cooldown"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	StationAddr    string        `yaml:"station_addr"`
	StationID      string        `yaml:"station_id"`
	JournalDBType  string        `yaml:"journal_db_type"`
	JournalDBURL   string        `yaml:"journal_db_url"`
	RabbitMQURL    string        `yaml:"rabbitmq_url"`
	BrokerExchange string        `yaml:"broker_exchange"`
	LogLevel       string        `yaml:"log_level"`
}

// Load builds a Config from, in increasing precedence: defaults, the YAML file
// named by STATION_CONFIG, and the environment. A .env file in the working
// directory is loaded first; its absence is not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()

	if path := os.Getenv("STATION_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}

	if cfg.StationID == "" {
		cfg.StationID = uuid.NewString()
	}
	if _, err := language.Parse(cfg.Locale); err != nil {
		return Config{}, fmt.Errorf("invalid LOCALE %q: %w", cfg.Locale, err)
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	tokenFile := defaultTokenDirName + "/token"
	if home, err := os.UserHomeDir(); err == nil {
		tokenFile = filepath.Join(home, defaultTokenDirName, "token")
	}
	return Config{
		Locale:         defaultLocale,
		TokenFile:      tokenFile,
		ScanCooldown:   defaultCooldown,
		HTTPTimeout:    defaultHTTPTimeout,
		StationAddr:    defaultStationAddr,
		JournalDBType:  defaultJournalType,
		JournalDBURL:   defaultJournalURL,
		BrokerExchange: defaultExchange,
		LogLevel:       defaultLogLevel,
	}
}

// Validate checks the fields a backend-facing binary cannot run without.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return ErrAPIURLRequired
	}
	if c.ScanCooldown < 0 {
		return fmt.Errorf("SCAN_COOLDOWN must not be negative, got %s", c.ScanCooldown)
	}
	switch c.JournalDBType {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("JOURNAL_DB_TYPE must be sqlite or postgres, got %q", c.JournalDBType)
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog.Level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LanguageTag returns the parsed Locale, falling back to English.
func (c Config) LanguageTag() language.Tag {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.English
	}
	return tag
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read station config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse station config %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() error {
	c.APIURL = getEnvOrDefault("API_URL", c.APIURL)
	c.Locale = getEnvOrDefault("LOCALE", c.Locale)
	c.TokenFile = getEnvOrDefault("TOKEN_FILE", c.TokenFile)
	c.StationAddr = getEnvOrDefault("STATION_ADDR", c.StationAddr)
	c.StationID = getEnvOrDefault("STATION_ID", c.StationID)
	c.JournalDBType = getEnvOrDefault("JOURNAL_DB_TYPE", c.JournalDBType)
	c.JournalDBURL = getEnvOrDefault("JOURNAL_DB_URL", c.JournalDBURL)
	c.RabbitMQURL = getEnvOrDefault("RABBITMQ_URL", c.RabbitMQURL)
	c.BrokerExchange = getEnvOrDefault("BROKER_EXCHANGE", c.BrokerExchange)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)

	var err error
	if c.ScanCooldown, err = getDurationOrDefault("SCAN_COOLDOWN", c.ScanCooldown); err != nil {
		return err
	}
	if c.HTTPTimeout, err = getDurationOrDefault("HTTP_TIMEOUT", c.HTTPTimeout); err != nil {
		return err
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
