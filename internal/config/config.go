// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Store struct {
		Path        string `json:"path"`         // BadgerDB directory
		ContentRoot string `json:"content_root"` // Blob fanout directory
	} `json:"store"`

	Intake struct {
		Dir string `json:"dir"` // Directory watched for incoming bundles
	} `json:"intake"`

	Environment string `json:"environment"` // dev, prod
	LogLevel    string `json:"log_level"`   // debug, info, warn, error
}

func getConfigPath() string {
	env := os.Getenv("DOGS_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns a configuration rooted under dir, used when no config
// file is present.
func Default(dir string) *Config {
	cfg := &Config{}
	cfg.Store.Path = filepath.Join(dir, ".dogs", "db")
	cfg.Store.ContentRoot = filepath.Join(dir, ".dogs", "objects")
	cfg.Intake.Dir = filepath.Join(dir, ".dogs", "intake")
	cfg.Environment = "development"
	cfg.LogLevel = "info"
	return cfg
}
