package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode   string `mapstructure:"mode"`
	Dotenv string `mapstructure:"dotenv"`
	Server struct {
		HTTPPort string        `mapstructure:"HTTPPort"`
		Timeout  time.Duration `mapstructure:"HTTPTimeout"`
	} `mapstructure:"server"`
	Repositories struct {
		Postgres struct {
			Host     string `mapstructure:"host"`
			Password string `mapstructure:"password"`
			Port     string `mapstructure:"port"`
			Username string `mapstructure:"username"`
			DB       string `mapstructure:"db"`
			SSLMode  string `mapstructure:"sslmode"`
		} `mapstructure:"postgres"`
		Mongo struct {
			URI      string `mapstructure:"uri"`
			Database string `mapstructure:"database"`
		} `mapstructure:"mongo"`
	} `mapstructure:"repositories"`
	JWT  JWTConfig  `mapstructure:"jwt"`
	SMTP SMTPConfig `mapstructure:"smtp"`
	Seed struct {
		AdminEmail string `mapstructure:"adminEmail"`
	} `mapstructure:"seed"`
	Sync struct {
		// Interval between reconciliation passes after the startup pass.
		// Zero means startup-only.
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"sync"`
	Metrics struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"metrics"`
}

// JWTConfig holds the session-token signing parameters. ExpiresIn is a
// duration spec of the form "<integer><unit>" with unit in {s,m,h,d};
// anything else falls back to 30 minutes (see auth.ParseExpiresIn).
type JWTConfig struct {
	SecretKey string `mapstructure:"secretKey"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
	ExpiresIn string `mapstructure:"expiresIn"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// BaseURL is prepended to verification / reset links in outgoing mail.
	BaseURL string `mapstructure:"baseURL"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Environment variables override file values, e.g. JWT_SECRETKEY.
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %s", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %s", err)
	}
	return config, nil
}
