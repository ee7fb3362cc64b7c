// Package config содержит логику чтения конфигурации сервиса продажи курсов.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса продажи курсов.
type Config struct {
	RunAddress           string `env:"RUN_ADDRESS"`
	DatabaseURI          string `env:"DATABASE_URI"`
	AppBaseURL           string `env:"APP_BASE_URL"`
	AuthSecret           string `env:"AUTH_SECRET"`
	GatewayAddress       string `env:"PAYMENT_GATEWAY_ADDRESS"`
	GatewaySecretKey     string `env:"PAYMENT_GATEWAY_SECRET_KEY"`
	GatewayWebhookSecret string `env:"PAYMENT_WEBHOOK_SECRET"`
	MailerAddress        string `env:"MAILER_ADDRESS"`
	MailerAPIKey         string `env:"MAILER_API_KEY"`
	MailerFrom           string `env:"MAILER_FROM"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envValues := *cfg

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AppBaseURL, "b", "http://localhost:8080", "public base URL of the application")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret key for auth cookies and password tokens")
	flag.StringVar(&cfg.GatewayAddress, "g", "", "payment gateway address")
	flag.StringVar(&cfg.GatewaySecretKey, "k", "", "payment gateway API key")
	flag.StringVar(&cfg.GatewayWebhookSecret, "w", "", "payment gateway webhook signing secret")
	flag.StringVar(&cfg.MailerAddress, "m", "", "email API address")
	flag.StringVar(&cfg.MailerAPIKey, "e", "", "email API key")
	flag.StringVar(&cfg.MailerFrom, "f", "noreply@courseshop.local", "sender address for outgoing email")

	flag.Parse()

	// Значения из окружения имеют приоритет над флагами.
	if envValues.RunAddress != "" {
		cfg.RunAddress = envValues.RunAddress
	}
	if envValues.DatabaseURI != "" {
		cfg.DatabaseURI = envValues.DatabaseURI
	}
	if envValues.AppBaseURL != "" {
		cfg.AppBaseURL = envValues.AppBaseURL
	}
	if envValues.AuthSecret != "" {
		cfg.AuthSecret = envValues.AuthSecret
	}
	if envValues.GatewayAddress != "" {
		cfg.GatewayAddress = envValues.GatewayAddress
	}
	if envValues.GatewaySecretKey != "" {
		cfg.GatewaySecretKey = envValues.GatewaySecretKey
	}
	if envValues.GatewayWebhookSecret != "" {
		cfg.GatewayWebhookSecret = envValues.GatewayWebhookSecret
	}
	if envValues.MailerAddress != "" {
		cfg.MailerAddress = envValues.MailerAddress
	}
	if envValues.MailerAPIKey != "" {
		cfg.MailerAPIKey = envValues.MailerAPIKey
	}
	if envValues.MailerFrom != "" {
		cfg.MailerFrom = envValues.MailerFrom
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
