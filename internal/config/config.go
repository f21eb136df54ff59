// Package config содержит логику чтения конфигурации CRM-сервиса Nexus.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации CRM-сервиса Nexus.
type Config struct {
	RunAddress   string `env:"RUN_ADDRESS"`
	DatabaseURI  string `env:"DATABASE_URI"`
	StoreFile    string `env:"STORE_FILE"`
	WebhookURL   string `env:"WEBHOOK_URL"`
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiAPIURL string `env:"GEMINI_API_URL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envStoreFile := cfg.StoreFile
	envWebhookURL := cfg.WebhookURL
	envGeminiKey := cfg.GeminiAPIKey

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI (remote store, optional)")
	flag.StringVar(&cfg.StoreFile, "f", "nexus_store.json", "path to local snapshot file")
	flag.StringVar(&cfg.WebhookURL, "w", "", "initial notification webhook URL")
	flag.StringVar(&cfg.GeminiAPIKey, "k", "", "Gemini API key for the insight proxy")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envStoreFile != "" {
		cfg.StoreFile = envStoreFile
	}
	if envWebhookURL != "" {
		cfg.WebhookURL = envWebhookURL
	}
	if envGeminiKey != "" {
		cfg.GeminiAPIKey = envGeminiKey
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.StoreFile == "" {
		cfg.StoreFile = "nexus_store.json"
	}

	return cfg, nil
}
