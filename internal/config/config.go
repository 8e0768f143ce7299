// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Telegram struct {
		Token string
		// Payment provider token for native Telegram invoices (YooKassa).
		ProviderToken string
	}
	DB struct {
		Host         string
		Port         string
		User         string
		Password     string
		DBName       string
		SSLMode      string
		MaxOpenConns int
		MaxIdleConns int
		ConnLifetime time.Duration
		QueryTimeout time.Duration
	}
	Stripe struct {
		SecretKey  string
		WebhookKey string
	}
	ML struct {
		ServiceURL    string
		InternalToken string
		Model         string
		Timeout       time.Duration
	}
	Server struct {
		Port string
	}
	ShutdownTimeout time.Duration
}

// Load reads configuration from config.yaml (current dir or ./config),
// with environment variables taking precedence over file values.
// A missing config file is not an error: everything can come from env.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("ShutdownTimeout", 10*time.Second)
	v.SetDefault("Server.Port", "8080")
	v.SetDefault("DB.Host", "localhost")
	v.SetDefault("DB.Port", "5432")
	v.SetDefault("DB.User", "postgres")
	v.SetDefault("DB.Password", "postgres")
	v.SetDefault("DB.DBName", "neucor")
	v.SetDefault("DB.SSLMode", "disable")
	v.SetDefault("DB.MaxOpenConns", 20)
	v.SetDefault("DB.MaxIdleConns", 10)
	v.SetDefault("DB.ConnLifetime", 5*time.Minute)
	v.SetDefault("DB.QueryTimeout", 10*time.Second)
	v.SetDefault("ML.Model", "openai")
	v.SetDefault("ML.Timeout", 60*time.Second)

	v.AutomaticEnv()
	bindEnvs(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// bindEnvs maps the flat env-var names used in deployment to config keys.
func bindEnvs(v *viper.Viper) {
	_ = v.BindEnv("Telegram.Token", "TELEGRAM_TOKEN")
	_ = v.BindEnv("Telegram.ProviderToken", "YOOKASSA_PROVIDER_TOKEN")
	_ = v.BindEnv("DB.Host", "DB_HOST")
	_ = v.BindEnv("DB.Port", "DB_PORT")
	_ = v.BindEnv("DB.User", "DB_USER")
	_ = v.BindEnv("DB.Password", "DB_PASSWORD")
	_ = v.BindEnv("DB.DBName", "DB_NAME")
	_ = v.BindEnv("DB.SSLMode", "DB_SSL_MODE")
	_ = v.BindEnv("Stripe.SecretKey", "STRIPE_SECRET_KEY")
	_ = v.BindEnv("Stripe.WebhookKey", "STRIPE_WEBHOOK_KEY")
	_ = v.BindEnv("ML.ServiceURL", "ML_SERVICE_URL")
	_ = v.BindEnv("ML.InternalToken", "INTERNAL_API_TOKEN")
	_ = v.BindEnv("ML.Model", "ML_MODEL")
	_ = v.BindEnv("Server.Port", "SERVER_PORT")
}
