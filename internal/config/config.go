package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
)

// Config holds every setting the blog reads at startup.
type Config struct {
	DebugMode bool `mapstructure:"debug_mode"`

	Server struct {
		Host string `mapstructure:"host"`
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`

	Data struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"data"`

	Session struct {
		Secret        string `mapstructure:"secret"`
		TTLHours      int    `mapstructure:"ttl_hours"`
		AdminUser     string `mapstructure:"admin_user"`
		AdminPassword string `mapstructure:"admin_password"`
	} `mapstructure:"session"`

	Zerolog struct {
		LoggerLevel string `mapstructure:"logger_level"`
	} `mapstructure:"zerolog"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.Server.Host = "localhost"
	c.Server.Port = "6893"
	c.Data.Dir = "./data"
	c.Session.TTLHours = 24
	c.Session.AdminUser = "admin"
	c.Zerolog.LoggerLevel = "info"
	return c
}

// Load reads the TOML file at path (a missing file is not an error), then
// applies .env and BLOG_* environment overrides.
func Load(path string) (*Config, error) {
	c := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	m := map[string]interface{}{}
	if _, err := toml.DecodeFile(path, &m); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to decode configuration file: %w", err)
	}

	if err := mapstructure.Decode(m, c); err != nil {
		return nil, fmt.Errorf("failed to decode configuration items: %w", err)
	}

	if v := os.Getenv("BLOG_DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("BLOG_SESSION_SECRET"); v != "" {
		c.Session.Secret = v
	}
	if v := os.Getenv("BLOG_ADMIN_PASSWORD"); v != "" {
		c.Session.AdminPassword = v
	}

	return c, nil
}

// DBPath is the SQLite database file inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.Data.Dir, "blog.db")
}

// IndexPath is the bleve index directory inside the data directory.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Data.Dir, "bleve")
}

// SessionTTL is how long an issued session token stays valid.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLHours) * time.Hour
}

// Addr is the listen address of the web server.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Validate reports settings the server cannot run without.
func (c *Config) Validate() error {
	if c.Session.Secret == "" {
		return errors.New("session secret is required (session.secret or BLOG_SESSION_SECRET)")
	}
	if c.SessionTTL() <= 0 {
		return errors.New("session.ttl_hours must be positive")
	}
	return nil
}

// SetupLogger applies the configured zerolog level globally.
func (c *Config) SetupLogger() {
	switch c.Zerolog.LoggerLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	case "no":
		zerolog.SetGlobalLevel(zerolog.NoLevel)
	case "disabled":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	}

	if c.DebugMode {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
