// Package config loads server settings from an optional .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the server settings.
type Config struct {
	DBPath  string
	Addr    string
	LogPath string

	// LogFormat is "text" or "json".
	LogFormat string

	// JWTSecret signs bearer tokens. When empty a secret is generated once
	// and kept in the database.
	JWTSecret string

	AdminEmail    string
	AdminName     string
	AdminPassword string

	CORSOrigins []string

	AMQPURL      string
	AMQPExchange string

	RevocationCacheSize int
	MaxImageBytes       int64
}

// Defaults returns the built-in settings.
func Defaults() *Config {
	return &Config{
		DBPath:              "threadlink.sqlite3",
		Addr:                ":5000",
		LogFormat:           "text",
		AdminEmail:          "admin@threadlink.com",
		AdminName:           "Administrator",
		CORSOrigins:         []string{"http://localhost:5173"},
		AMQPExchange:        "threadlink.events",
		RevocationCacheSize: 4096,
		MaxImageBytes:       8 << 20,
	}
}

// Load returns the defaults overridden by envFile (if it exists) and then by
// the process environment. Variables already set in the environment take
// precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := Defaults()
	cfg.DBPath = getEnv("THREADLINK_DB", cfg.DBPath)
	cfg.Addr = getEnv("THREADLINK_ADDR", cfg.Addr)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("THREADLINK_ADDR") == "" {
		cfg.Addr = ":" + port
	}
	cfg.LogPath = getEnv("THREADLINK_LOG", cfg.LogPath)
	cfg.LogFormat = strings.ToLower(getEnv("THREADLINK_LOG_FORMAT", cfg.LogFormat))
	cfg.JWTSecret = getEnv("THREADLINK_JWT_SECRET", cfg.JWTSecret)
	cfg.AdminEmail = getEnv("THREADLINK_ADMIN_EMAIL", cfg.AdminEmail)
	cfg.AdminName = getEnv("THREADLINK_ADMIN_NAME", cfg.AdminName)
	cfg.AdminPassword = getEnv("THREADLINK_ADMIN_PASSWORD", cfg.AdminPassword)
	if v := os.Getenv("THREADLINK_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	cfg.AMQPURL = getEnv("THREADLINK_AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("THREADLINK_AMQP_EXCHANGE", cfg.AMQPExchange)

	var err error
	if cfg.RevocationCacheSize, err = getInt("THREADLINK_REVOCATION_CACHE", cfg.RevocationCacheSize); err != nil {
		return nil, err
	}
	maxImage, err := getInt("THREADLINK_MAX_IMAGE_BYTES", int(cfg.MaxImageBytes))
	if err != nil {
		return nil, err
	}
	cfg.MaxImageBytes = int64(maxImage)

	return cfg, cfg.Validate()
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("database path must not be empty")
	}
	if c.Addr == "" {
		return errors.New("listen address must not be empty")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.AdminEmail == "" {
		return errors.New("admin email must not be empty")
	}
	if c.RevocationCacheSize <= 0 {
		return errors.New("revocation cache size must be positive")
	}
	if c.MaxImageBytes <= 0 {
		return errors.New("max image size must be positive")
	}
	return nil
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
