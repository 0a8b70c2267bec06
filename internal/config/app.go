package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"
)

// AppConfig is the process level configuration of the CLI: where the data
// lives and how chatty the logs are. Keys are bound to cobra flags by the
// caller and can be overridden with DAVSYNC_* environment variables.
type AppConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	Database   string `mapstructure:"database"`
	ImagesDir  string `mapstructure:"images_dir"`
	ConfigPath string `mapstructure:"config"`
	Debug      bool   `mapstructure:"debug"`
}

// LoadAppConfig reads the app config out of v.
func LoadAppConfig(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("app config: %w", err)
	}
	if cfg.DataDir == "" {
		return nil, errors.New("app config: data dir is required")
	}
	return &cfg, nil
}

func (c *AppConfig) LogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
