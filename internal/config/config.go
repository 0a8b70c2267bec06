// Package config loads and persists the WebDAV sync target.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/dogcuisine/davsync/internal/utils"
	"github.com/goccy/go-json"
	"github.com/spf13/viper"
)

const EnvPrefix = "DAVSYNC"

var (
	ErrNotConfigured = errors.New("config: webdav sync is not configured")
	ErrInvalidURL    = errors.New("config: invalid base url")
)

// SyncConfig is the remote target of a sync pass. Username is optional; when it
// is empty no Authorization header is sent.
type SyncConfig struct {
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
}

// HasAuth reports whether requests should carry basic auth.
func (c *SyncConfig) HasAuth() bool {
	return c.Username != ""
}

func (c *SyncConfig) normalize() {
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.Username = strings.TrimSpace(c.Username)
	c.Password = strings.TrimSpace(c.Password)
}

// Validate normalizes the config and checks the base url.
func (c *SyncConfig) Validate() error {
	c.normalize()

	if c.BaseURL == "" {
		return ErrNotConfigured
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// String is safe to log: the password is masked.
func (c *SyncConfig) String() string {
	return fmt.Sprintf("base_url=%s username=%s password=%s", c.BaseURL, c.Username, utils.MaskSecret(c.Password))
}

// Load reads and validates the sync config at path. A missing file is not an
// error by itself, but a config without a base url is ErrNotConfigured.
func Load(path string) (*SyncConfig, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read loads the sync config at path without validating it. DAVSYNC_BASE_URL,
// DAVSYNC_USERNAME and DAVSYNC_PASSWORD override the file.
func Read(path string) (*SyncConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for _, key := range []string{"base_url", "username", "password"} {
		v.SetDefault(key, "")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", path, err)
		}
	}

	cfg := &SyncConfig{
		BaseURL:  v.GetString("base_url"),
		Username: v.GetString("username"),
		Password: v.GetString("password"),
	}
	cfg.normalize()
	return cfg, nil
}

// Save writes the config as JSON. The file holds a password so it is created 0600.
func (c *SyncConfig) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
