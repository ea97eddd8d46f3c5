package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.deskchat/config.toml.
type Config struct {
	// ServerURL is the base URL of the BizDesk server, e.g. https://desk.example.com.
	ServerURL string `toml:"server_url"`
	// Token is the API token used for REST calls and the socket handshake.
	Token string `toml:"token"`
	// DefaultProfile selects the profile used when none is given on the command line.
	DefaultProfile string `toml:"default_profile"`
}

// Validate checks that the fields required to talk to a server are present.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if c.Token == "" {
		return errors.New("token is required")
	}
	return nil
}

// Load reads config from the given path. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
