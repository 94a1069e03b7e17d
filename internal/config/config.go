package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Auth      AuthConfig     `mapstructure:"auth"`
	Session   SessionConfig  `mapstructure:"session"`
	JWTSecret string         `mapstructure:"jwt_secret"`
	Debug     bool           `mapstructure:"debug"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
}

// AuthConfig points at the external identity service that owns credentials.
type AuthConfig struct {
	URL           string `mapstructure:"url"`
	CaptchaSecret string `mapstructure:"captcha_secret"`
}

type SessionConfig struct {
	MaxIdleHours int `mapstructure:"max_idle_hours"`
	SweepMinutes int `mapstructure:"sweep_minutes"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "postgres" {
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			d.User, d.Password, d.Host, d.Port, d.Name)
	}
	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../..")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.driver", "mssql")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 1433)
	viper.SetDefault("database.pool_size", 10)
	viper.SetDefault("auth.url", "http://localhost:4000/")
	viper.SetDefault("session.max_idle_hours", 6)
	viper.SetDefault("session.sweep_minutes", 60)
	viper.SetDefault("jwt_secret", "changeme-secret")
	viper.SetDefault("debug", false)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
