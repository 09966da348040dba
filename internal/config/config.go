// Package config loads the settings shared by the churchtools commands.
//
// Values are read in this order, later sources winning:
//
//  1. defaults
//  2. config.yaml in ~/.config/churchtools or the working directory
//  3. variables from the env file (".env" unless given)
//  4. CHURCHTOOLS_* environment variables
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/Sternrassler/churchtools-client/pkg/client"
)

// EnvPrefix is prepended to every environment variable, e.g. CHURCHTOOLS_TOKEN.
const EnvPrefix = "CHURCHTOOLS"

// DefaultEnvFile is loaded when present.
const DefaultEnvFile = ".env"

// Config holds application configuration
type Config struct {
	// Domain of the ChurchTools instance, e.g. "https://example.church.tools".
	Domain string

	// Token is the login token of the API user.
	Token string

	// RedisURL enables the shared cache, e.g. "redis://localhost:6379/0"
	// or just "localhost:6379". Empty disables Redis.
	RedisURL string

	UserAgent        string
	CacheTTL         time.Duration
	HTTPTimeout      time.Duration
	MaxRateLimitWait time.Duration
}

// Options controls where Load looks for configuration.
type Options struct {
	// ConfigFile overrides the config.yaml search. It must exist when set.
	ConfigFile string

	// EnvFile overrides DefaultEnvFile. It must exist when set.
	EnvFile string
}

// Load reads configuration from file and environment
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetDefault("domain", "")
	v.SetDefault("token", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("user_agent", "churchtools-client/"+client.Version)
	v.SetDefault("cache_ttl", "60s")
	v.SetDefault("http_timeout", "30s")
	v.SetDefault("max_rate_limit_wait", "2m")

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	cfg := &Config{
		Domain:           normalizeDomain(v.GetString("domain")),
		Token:            v.GetString("token"),
		RedisURL:         v.GetString("redis_url"),
		UserAgent:        v.GetString("user_agent"),
		CacheTTL:         v.GetDuration("cache_ttl"),
		HTTPTimeout:      v.GetDuration("http_timeout"),
		MaxRateLimitWait: v.GetDuration("max_rate_limit_wait"),
	}

	return cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// normalizeDomain accepts a bare host name and defaults it to https.
func normalizeDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	return strings.TrimRight(domain, "/")
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".config", "churchtools")
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.Domain == "" {
		return fmt.Errorf("%s_DOMAIN is not set", EnvPrefix)
	}
	if c.Token == "" {
		return fmt.Errorf("%s_TOKEN is not set", EnvPrefix)
	}
	return nil
}

// RedisOptions parses RedisURL. It returns nil when Redis is disabled.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if c.RedisURL == "" {
		return nil, nil
	}
	if !strings.Contains(c.RedisURL, "://") {
		return &redis.Options{Addr: c.RedisURL}, nil
	}
	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}

// ClientConfig converts the settings into a client.Config. rdb may be nil.
func (c *Config) ClientConfig(rdb *redis.Client) client.Config {
	cfg := client.DefaultConfig(c.Domain, c.Token)
	cfg.Redis = rdb
	if c.UserAgent != "" {
		cfg.UserAgent = c.UserAgent
	}
	if c.CacheTTL > 0 {
		cfg.CacheTTL = c.CacheTTL
	}
	if c.HTTPTimeout > 0 {
		cfg.HTTPTimeout = c.HTTPTimeout
	}
	if c.MaxRateLimitWait > 0 {
		cfg.MaxRateLimitWait = c.MaxRateLimitWait
	}
	return cfg
}
