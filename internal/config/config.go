package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"exchlink/internal/model"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Auth modes an exchange can use for order requests.
const (
	AuthModeBody = "body"
	AuthModeHMAC = "hmac"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Feed      FeedConfig
	Exchanges map[string]ExchangeConfig
	Log       LogConfig
}

// FeedConfig defines the market-data stream settings.
type FeedConfig struct {
	URL              string        `mapstructure:"url"`
	Channel          string        `mapstructure:"channel"`
	SubscribeID      int           `mapstructure:"subscribe_id"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

// ExchangeConfig defines endpoint and credentials for a specific exchange.
type ExchangeConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	APIKey             string        `mapstructure:"api_key"`
	SecretKey          string        `mapstructure:"secret_key"`
	Timeout            time.Duration `mapstructure:"timeout"`
	AuthMode           string        `mapstructure:"auth_mode"`
	RateLimitPerSecond float64       `mapstructure:"rate_limit_per_second"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
}

// LogConfig defines the logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaultBaseURLs = map[model.ExchangeID]string{
	model.ExchangeA: "https://api.exchange-a.com",
	model.ExchangeB: "https://api.exchange-b.com",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feed.url", "wss://fstream.binance.com/ws")
	v.SetDefault("feed.channel", "!ticker@arr")
	v.SetDefault("feed.subscribe_id", 1)
	v.SetDefault("feed.handshake_timeout", 10*time.Second)

	// Every exchange key is registered so that environment variables
	// override it even when no config file mentions the exchange.
	for _, id := range model.Exchanges() {
		prefix := "exchanges." + id.Key() + "."
		v.SetDefault(prefix+"base_url", defaultBaseURLs[id])
		v.SetDefault(prefix+"api_key", "")
		v.SetDefault(prefix+"secret_key", "")
		v.SetDefault(prefix+"timeout", 10*time.Second)
		v.SetDefault(prefix+"auth_mode", AuthModeBody)
		v.SetDefault(prefix+"rate_limit_per_second", 0)
		v.SetDefault(prefix+"rate_limit_burst", 1)
	}

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig reads configuration from file or environment variables.
// A .env file in the working directory is loaded into the environment first.
// A missing config file is not an error.
func LoadConfig(path string) (config Config, err error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	err = config.Validate()
	return
}

// Validate checks the settings that cannot be defaulted.
func (c Config) Validate() error {
	if c.Feed.URL == "" {
		return errors.New("feed.url is required")
	}
	if c.Feed.Channel == "" {
		return errors.New("feed.channel is required")
	}
	for key, ex := range c.Exchanges {
		if _, err := model.ParseExchangeID(key); err != nil {
			return fmt.Errorf("exchanges.%s: %w", key, err)
		}
		switch ex.AuthMode {
		case "", AuthModeBody, AuthModeHMAC:
		default:
			return fmt.Errorf("exchanges.%s.auth_mode: unsupported value %q", key, ex.AuthMode)
		}
		if ex.RateLimitPerSecond < 0 {
			return fmt.Errorf("exchanges.%s.rate_limit_per_second must not be negative", key)
		}
	}
	return nil
}

// Credentials builds the routing table of exchange credentials.
// Exchanges without a base URL are left out.
func (c Config) Credentials() map[model.ExchangeID]model.Credential {
	creds := make(map[model.ExchangeID]model.Credential, len(c.Exchanges))
	for key, ex := range c.Exchanges {
		id, err := model.ParseExchangeID(key)
		if err != nil || ex.BaseURL == "" {
			continue
		}
		creds[id] = model.Credential{
			Exchange:  id,
			BaseURL:   strings.TrimRight(ex.BaseURL, "/"),
			APIKey:    ex.APIKey,
			SecretKey: ex.SecretKey,
		}
	}
	return creds
}
