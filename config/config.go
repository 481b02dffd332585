// Package config loads service settings from config.yaml, .env and the
// environment, in that order of precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Http struct {
		Host    string        `yaml:"host"`
		Port    int           `yaml:"port"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"http"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`
	ML struct {
		ModelType  string `yaml:"model_type"`
		ModelPath  string `yaml:"model_path"`
		ScalerPath string `yaml:"scaler_path"`
		CacheSize  int    `yaml:"cache_size"`
	} `yaml:"ml"`
	UI struct {
		Language string `yaml:"language"`
	} `yaml:"ui"`
	History struct {
		Enabled bool   `yaml:"enabled"`
		Driver  string `yaml:"driver"`
		DSN     string `yaml:"dsn"`
	} `yaml:"history"`
	Feed struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"feed"`
	Watch struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"watch"`
}

// Default returns the settings used when no config file is present.
func Default() *Config {
	var c Config
	c.Http.Host = "127.0.0.1"
	c.Http.Port = 5000
	c.Http.Timeout = 30 * time.Second
	c.Log.Level = "info"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 3
	c.Log.MaxAgeDays = 28
	c.ML.ModelType = "knn"
	c.ML.ModelPath = "knn_water_model.json"
	c.ML.ScalerPath = "scaler_water.json"
	c.ML.CacheSize = 0
	c.UI.Language = "en"
	c.History.Driver = "sqlite3"
	c.History.DSN = "water_history.db"
	c.Watch.Enabled = true
	return &c
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	config := Default()

	file, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(config); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	return config, config.Validate()
}

func (c *Config) applyEnv() error {
	c.Http.Host = getEnv("WATER_HTTP_HOST", c.Http.Host)
	c.Log.Level = getEnv("WATER_LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("WATER_LOG_FILE", c.Log.File)
	c.ML.ModelPath = getEnv("WATER_MODEL_PATH", c.ML.ModelPath)
	c.ML.ScalerPath = getEnv("WATER_SCALER_PATH", c.ML.ScalerPath)
	c.UI.Language = getEnv("WATER_UI_LANGUAGE", c.UI.Language)
	c.History.DSN = getEnv("WATER_HISTORY_DSN", c.History.DSN)

	if val := os.Getenv("WATER_HTTP_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("WATER_HTTP_PORT: %w", err)
		}
		c.Http.Port = port
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Http.Port < 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.Http.Port)
	}
	if c.ML.ModelPath == "" || c.ML.ScalerPath == "" {
		return errors.New("ml.model_path and ml.scaler_path are required")
	}
	if c.History.Enabled && c.History.DSN == "" {
		return errors.New("history.dsn is required when history is enabled")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Http.Host, c.Http.Port)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
