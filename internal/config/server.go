package config

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds signaling-server configuration, loaded from a yaml
// file with env-specific overrides.
type ServerConfig struct {
	Port       int           `mapstructure:"port"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	RoomTTL    time.Duration `mapstructure:"room_ttl"`
}

// LoadServer reads config/server.<env>.yaml (env from ROOMKIT_ENV,
// default "dev") and falls back to defaults when the file is absent.
func LoadServer() (*ServerConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("ROOMKIT_ENV")
	if env == "" {
		env = "dev"
	}
	v.SetConfigName("server." + env)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("port", 8080)
	v.SetDefault("secret", "")
	v.SetDefault("read_limit", 64*1024)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("room_ttl", "24h")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if secret := os.Getenv("ROOMKIT_SECRET"); secret != "" {
		v.Set("secret", secret)
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
