package config

import (
	"fmt"
	"strconv"
	"strings"
)

type envBinding struct {
	key string
	set func(c *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = strings.TrimSpace(v)
		return nil
	}
}

func float(dst func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*dst(c) = f
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

var envBindings = []envBinding{
	{"EFILE_LOG_LEVEL", str(func(c *Config) *string { return &c.LogLevel })},

	{"EFILE_API_BASE_URL", str(func(c *Config) *string { return &c.Client.APIBaseURL })},
	{"EFILE_CLIENT_TIMEOUT", str(func(c *Config) *string { return &c.Client.Timeout })},
	{"EFILE_CLIENT_RATE", float(func(c *Config) *float64 { return &c.Client.Rate })},
	{"EFILE_CLIENT_BURST", integer(func(c *Config) *int { return &c.Client.Burst })},
	{"EFILE_STATE_DIR", str(func(c *Config) *string { return &c.Client.StateDir })},
	{"EFILE_TOKEN_STORE", str(func(c *Config) *string { return &c.Client.TokenStore })},
	{"EFILE_REDIS_URL", str(func(c *Config) *string { return &c.Client.RedisURL })},
	{"EFILE_REDIS_SLOT", str(func(c *Config) *string { return &c.Client.RedisSlot })},

	{"EFILE_ADDR", str(func(c *Config) *string { return &c.Server.Addr })},
	{"EFILE_DATABASE_URL", str(func(c *Config) *string { return &c.Server.DatabaseURL })},
	{"EFILE_AUTH_SECRET", str(func(c *Config) *string { return &c.Server.AuthSecret })},
	{"EFILE_TOKEN_TTL", str(func(c *Config) *string { return &c.Server.TokenTTL })},
	{"EFILE_BLOB_BACKEND", str(func(c *Config) *string { return &c.Server.BlobBackend })},
	{"EFILE_BLOB_DIR", str(func(c *Config) *string { return &c.Server.BlobDir })},
	{"EFILE_S3_BUCKET", str(func(c *Config) *string { return &c.Server.S3Bucket })},
	{"EFILE_S3_REGION", str(func(c *Config) *string { return &c.Server.S3Region })},
	{"EFILE_S3_PREFIX", str(func(c *Config) *string { return &c.Server.S3Prefix })},
	{"EFILE_S3_ENDPOINT", str(func(c *Config) *string { return &c.Server.S3Endpoint })},
	{"EFILE_RATE_LIMIT", float(func(c *Config) *float64 { return &c.Server.RateLimit })},
	{"EFILE_RATE_BURST", integer(func(c *Config) *int { return &c.Server.RateBurst })},
	{"EFILE_MAX_BODY_BYTES", func(c *Config, v string) error {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return err
		}
		c.Server.MaxBodyBytes = n
		return nil
	}},
	{"EFILE_CORS_ORIGINS", func(c *Config, v string) error {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.CORSOrigins = origins
		return nil
	}},
	{"EFILE_BOOTSTRAP_ADMIN_NSTIN", str(func(c *Config) *string { return &c.Server.BootstrapAdminNSTIN })},
	{"EFILE_BOOTSTRAP_ADMIN_PASSWORD", str(func(c *Config) *string { return &c.Server.BootstrapAdminPassword })},
	{"EFILE_BOOTSTRAP_ADMIN_NAME", str(func(c *Config) *string { return &c.Server.BootstrapAdminName })},
	{"EFILE_BOOTSTRAP_ADMIN_EMAIL", str(func(c *Config) *string { return &c.Server.BootstrapAdminEmail })},
}

func (c *Config) applyEnv(get func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := get(b.key)
		if !ok {
			continue
		}
		if err := b.set(c, v); err != nil {
			return fmt.Errorf("config: %s: %w", b.key, err)
		}
	}
	return nil
}
