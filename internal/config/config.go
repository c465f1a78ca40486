// Package config loads settings for the efile client and the efiled server.
//
// Values are layered: built-in defaults, then a YAML file, then a .env file,
// then EFILE_* variables from the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string       `yaml:"log_level"`
	Client   ClientConfig `yaml:"client"`
	Server   ServerConfig `yaml:"server"`
}

// ClientConfig configures the command line client.
type ClientConfig struct {
	APIBaseURL string  `yaml:"api_base_url"`
	Timeout    string  `yaml:"timeout"`
	Rate       float64 `yaml:"rate"`
	Burst      int     `yaml:"burst"`
	StateDir   string  `yaml:"state_dir"`
	TokenStore string  `yaml:"token_store"`
	RedisURL   string  `yaml:"redis_url"`
	RedisSlot  string  `yaml:"redis_slot"`
}

// ServerConfig configures the reference portal server.
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	DatabaseURL  string   `yaml:"database_url"`
	AuthSecret   string   `yaml:"auth_secret"`
	TokenTTL     string   `yaml:"token_ttl"`
	BlobBackend  string   `yaml:"blob_backend"`
	BlobDir      string   `yaml:"blob_dir"`
	S3Bucket     string   `yaml:"s3_bucket"`
	S3Region     string   `yaml:"s3_region"`
	S3Prefix     string   `yaml:"s3_prefix"`
	S3Endpoint   string   `yaml:"s3_endpoint"`
	RateLimit    float64  `yaml:"rate_limit"`
	RateBurst    int      `yaml:"rate_burst"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
	CORSOrigins  []string `yaml:"cors_origins"`

	BootstrapAdminNSTIN    string `yaml:"bootstrap_admin_nstin"`
	BootstrapAdminPassword string `yaml:"bootstrap_admin_password"`
	BootstrapAdminName     string `yaml:"bootstrap_admin_name"`
	BootstrapAdminEmail    string `yaml:"bootstrap_admin_email"`
}

const (
	TokenStoreFile   = "file"
	TokenStoreRedis  = "redis"
	TokenStoreMemory = "memory"

	BlobDisk = "disk"
	BlobS3   = "s3"
)

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Client: ClientConfig{
			APIBaseURL: "http://localhost:8080/api",
			Timeout:    "30s",
			Burst:      1,
			StateDir:   defaultStateDir(),
			TokenStore: TokenStoreFile,
			RedisSlot:  "default",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			TokenTTL:     "24h",
			BlobBackend:  BlobDisk,
			BlobDir:      "data/files",
			RateLimit:    20,
			RateBurst:    40,
			MaxBodyBytes: 20 << 20,
			CORSOrigins:  []string{"*"},
		},
	}
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".efile"
	}
	return filepath.Join(dir, "efile")
}

// Load reads path and envFile (either may be empty or missing) and applies
// EFILE_* variables from the process environment.
func Load(path, envFile string) (*Config, error) {
	return LoadWith(path, envFile, os.LookupEnv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(path, envFile string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		default:
			dotenv = m
		}
	}

	get := func(key string) (string, bool) {
		if v, ok := lookup(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok && v != ""
	}
	if err := cfg.applyEnv(get); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ClientTimeout returns the client timeout, 30s when unset or malformed.
func (c *Config) ClientTimeout() time.Duration {
	return parseDuration(c.Client.Timeout, 30*time.Second)
}

// TokenTTL returns the issued token lifetime, 24h when unset or malformed.
func (c *Config) TokenTTL() time.Duration {
	return parseDuration(c.Server.TokenTTL, 24*time.Hour)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// TokenFile is where the file token store keeps the bearer token.
func (c *Config) TokenFile() string {
	return filepath.Join(c.Client.StateDir, "token")
}

// ValidateClient checks the settings the client commands depend on.
func (c *Config) ValidateClient() error {
	if strings.TrimSpace(c.Client.APIBaseURL) == "" {
		return errors.New("config: client.api_base_url is required")
	}
	switch c.Client.TokenStore {
	case TokenStoreFile:
		if c.Client.StateDir == "" {
			return errors.New("config: client.state_dir is required for the file token store")
		}
	case TokenStoreRedis:
		if c.Client.RedisURL == "" {
			return errors.New("config: client.redis_url is required for the redis token store")
		}
	case TokenStoreMemory:
	default:
		return fmt.Errorf("config: unknown token store %q (valid: file, redis, memory)", c.Client.TokenStore)
	}
	if c.Client.Rate < 0 {
		return errors.New("config: client.rate must not be negative")
	}
	return nil
}

// ValidateServer checks the settings efiled depends on.
func (c *Config) ValidateServer() error {
	if len(c.Server.AuthSecret) < 16 {
		return errors.New("config: server.auth_secret must be at least 16 characters")
	}
	switch c.Server.BlobBackend {
	case BlobDisk:
		if c.Server.BlobDir == "" {
			return errors.New("config: server.blob_dir is required for the disk backend")
		}
	case BlobS3:
		if c.Server.S3Bucket == "" {
			return errors.New("config: server.s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("config: unknown blob backend %q (valid: disk, s3)", c.Server.BlobBackend)
	}
	if (c.Server.BootstrapAdminNSTIN == "") != (c.Server.BootstrapAdminPassword == "") {
		return errors.New("config: bootstrap admin needs both nstin and password")
	}
	return nil
}
