package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/localnerve/moka/data"
	"golang.org/x/text/encoding/htmlindex"
	"gopkg.in/yaml.v3"
)

// AppConfigFiles are the optional per-app configuration files, looked up in the base
// directory in this order. The first one found is merged over the defaults.
var AppConfigFiles = []string{"app.json", "app.yaml", "app.yml"}

// DBConfig holds the database connection settings. It is read from the database
// configuration file in the source root and falls back to the DB_* environment.
type DBConfig struct {
	Type            string `yaml:"type" json:"type"` // mysql, postgres, sqlite, sqlite-pure, sqlserver
	Host            string `yaml:"host" json:"host"`
	Port            string `yaml:"port" json:"port"`
	Database        string `yaml:"database" json:"database"`
	User            string `yaml:"user" json:"user"`
	Password        string `yaml:"password" json:"-"`
	ConnectionLimit int    `yaml:"connectionLimit" json:"connectionLimit"`
	QueryComments   bool   `yaml:"queryComments" json:"queryComments"`
}

// Config holds all runtime configuration
type Config struct {
	// BaseDirectory anchors every relative path below
	BaseDirectory string `yaml:"-"`

	// Source and build trees
	AppDirectory   string `yaml:"APP_DIRECTORY"`
	BuildDirectory string `yaml:"BUILD_DIRECTORY"`

	// File names inside the source tree
	AppDBConfig   string `yaml:"APP_DB_CONFIG"`
	MappingConfig string `yaml:"MAPPING_CONFIG"`

	// Dispatch
	DefaultMethodName string `yaml:"DEFAULT_METHOD_NAME"`
	EntryClass        string `yaml:"ENTRY_CLASS"`

	// Process and server
	LogLevel    string `yaml:"LOG_LEVEL"`
	Workers     int    `yaml:"WORKERS"`
	WebPort     string `yaml:"WEB_PORT"`
	MetricsPath string `yaml:"METRICS_PATH"`

	DefaultFileEncoding string `yaml:"DEFAULT_FILE_ENCODING"`

	// Database used when the source tree has no database configuration file
	Database DBConfig `yaml:"DATABASE"`
}

// Load builds the configuration for the app rooted at baseDir.
// Layers, lowest first: embedded defaults, app config file, .env file, environment.
func Load(baseDir string) (*Config, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data.Defaults, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode defaults: %w", err)
	}
	cfg.BaseDirectory = abs

	for _, name := range AppConfigFiles {
		raw, err := os.ReadFile(filepath.Join(abs, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		break
	}

	if err := godotenv.Load(filepath.Join(abs, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg.applyEnv()
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the runtime cannot work with
func (c *Config) Validate() error {
	if c.AppDirectory == "" {
		return fmt.Errorf("APP_DIRECTORY is required")
	}
	if c.BuildDirectory == "" {
		return fmt.Errorf("BUILD_DIRECTORY is required")
	}
	if c.EntryClass == "" {
		return fmt.Errorf("ENTRY_CLASS is required")
	}
	if c.DefaultMethodName == "" {
		return fmt.Errorf("DEFAULT_METHOD_NAME is required")
	}
	if c.WebPort == "" {
		return fmt.Errorf("WEB_PORT is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("WORKERS must not be negative, got %d", c.Workers)
	}
	if _, err := htmlindex.Get(c.DefaultFileEncoding); err != nil {
		return fmt.Errorf("unsupported DEFAULT_FILE_ENCODING %q: %w", c.DefaultFileEncoding, err)
	}
	return nil
}

// DBConfigPath is the location of the database configuration file
func (c *Config) DBConfigPath() string {
	return filepath.Join(c.AppDirectory, c.AppDBConfig)
}

func (c *Config) applyEnv() {
	c.AppDirectory = getEnv("APP_DIRECTORY", c.AppDirectory)
	c.BuildDirectory = getEnv("BUILD_DIRECTORY", c.BuildDirectory)
	c.AppDBConfig = getEnv("APP_DB_CONFIG", c.AppDBConfig)
	c.MappingConfig = getEnv("MAPPING_CONFIG", c.MappingConfig)
	c.DefaultMethodName = getEnv("DEFAULT_METHOD_NAME", c.DefaultMethodName)
	c.EntryClass = getEnv("ENTRY_CLASS", c.EntryClass)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Workers = getEnvAsInt("WORKERS", c.Workers)
	c.WebPort = getEnv("WEB_PORT", c.WebPort)
	c.MetricsPath = getEnv("METRICS_PATH", c.MetricsPath)
	c.DefaultFileEncoding = getEnv("DEFAULT_FILE_ENCODING", c.DefaultFileEncoding)

	c.Database.Type = getEnv("DB_TYPE", c.Database.Type)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.Database = getEnv("DB_DATABASE", c.Database.Database)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.ConnectionLimit = getEnvAsInt("DB_CONNECTION_LIMIT", c.Database.ConnectionLimit)
}

func (c *Config) resolvePaths() {
	c.AppDirectory = c.resolve(c.AppDirectory)
	c.BuildDirectory = c.resolve(c.BuildDirectory)
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.BaseDirectory, path)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
