package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/commandlayer/runtime-core/pkg/canonicalize"
)

// Config holds runtime configuration for receipt tooling.
type Config struct {
	LogLevel      string        `yaml:"log_level" json:"log_level"`
	SchemaHost    string        `yaml:"schema_host" json:"schema_host"`
	SchemaTimeout time.Duration `yaml:"schema_timeout" json:"schema_timeout"`
	RedisAddr     string        `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
	RedisPassword string        `yaml:"redis_password,omitempty" json:"-"`
	RedisDB       int           `yaml:"redis_db,omitempty" json:"redis_db,omitempty"`
	ENSCacheTTL   time.Duration `yaml:"ens_cache_ttl" json:"ens_cache_ttl"`
	SignerID      string        `yaml:"signer_id,omitempty" json:"signer_id,omitempty"`
	Kid           string        `yaml:"kid,omitempty" json:"kid,omitempty"`
	Canonical     string        `yaml:"canonical" json:"canonical"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		LogLevel:      "INFO",
		SchemaHost:    "https://www.commandlayer.org",
		SchemaTimeout: 5 * time.Second,
		ENSCacheTTL:   10 * time.Minute,
		Canonical:     canonicalize.SortedKeysV1ID,
	}
}

// Load loads configuration from environment variables over the defaults.
func Load() *Config {
	cfg := Defaults()
	applyEnv(cfg)
	return cfg
}

// LoadFile overlays a YAML file on the defaults; environment variables still
// take precedence over the file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.SchemaHost, "SCHEMA_HOST")
	setDuration(&cfg.SchemaTimeout, "SCHEMA_TIMEOUT")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.RedisDB, "REDIS_DB")
	setDuration(&cfg.ENSCacheTTL, "ENS_CACHE_TTL")
	setString(&cfg.SignerID, "RECEIPT_SIGNER_ID")
	setString(&cfg.Kid, "RECEIPT_KID")
	setString(&cfg.Canonical, "RECEIPT_CANONICAL")
	cfg.LogLevel = strings.ToUpper(cfg.LogLevel)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config: ignoring invalid duration", "key", key, "value", v, "error", err)
		return
	}
	*dst = d
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: ignoring invalid integer", "key", key, "value", v, "error", err)
		return
	}
	*dst = n
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	u, err := url.Parse(c.SchemaHost)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid schema host %q", c.SchemaHost)
	}
	if c.SchemaTimeout <= 0 {
		return fmt.Errorf("schema timeout must be positive, got %s", c.SchemaTimeout)
	}
	if c.ENSCacheTTL < 0 {
		return fmt.Errorf("ENS cache TTL must not be negative, got %s", c.ENSCacheTTL)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("invalid redis db %d", c.RedisDB)
	}
	if c.Canonical == "" {
		return fmt.Errorf("canonical identifier must not be empty")
	}
	return nil
}
