package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             int           `mapstructure:"port"`
	DBPath           string        `mapstructure:"db_path"`
	AllowedOrigin    string        `mapstructure:"allowed_origin"`
	ReadLimit        int64         `mapstructure:"read_limit"`
	AutosaveInterval time.Duration `mapstructure:"autosave_interval"`
	Judge0URL        string        `mapstructure:"judge0_url"`
	Judge0Key        string        `mapstructure:"judge0_key"`
	Judge0Host       string        `mapstructure:"judge0_host"`
	RunTimeout       time.Duration `mapstructure:"run_timeout"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("CODEHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "./data/codehive.db")
	v.SetDefault("allowed_origin", "*")
	v.SetDefault("read_limit", 1024*1024)
	v.SetDefault("autosave_interval", "2s")
	v.SetDefault("judge0_url", "https://judge0-ce.p.rapidapi.com")
	v.SetDefault("judge0_host", "judge0-ce.p.rapidapi.com")
	v.SetDefault("run_timeout", "30s")

	// Config file is optional; env vars and defaults cover everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
