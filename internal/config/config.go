package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Payments PaymentsConfig `yaml:"payments"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Orders   OrdersConfig   `yaml:"orders"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type PaymentsConfig struct {
	ProviderName           string `yaml:"provider_name"`
	ProviderBaseURL        string `yaml:"provider_base_url"`
	ProviderAPIKey         string `yaml:"provider_api_key"`
	ProviderTimeoutSeconds int    `yaml:"provider_timeout_seconds"`
	Currency               string `yaml:"currency"`
}

// ProviderTimeout bounds the outbound provider call; on expiry the
// charge fails and the transaction stays pending for a caller retry.
func (c PaymentsConfig) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

type CatalogConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c CatalogConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type OrdersConfig struct {
	// NumberWidth is the zero-padded width of the sequential part of
	// order numbers, e.g. width 6 yields "DV-000001".
	NumberWidth int `yaml:"number_width"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Payments.ProviderTimeoutSeconds == 0 {
		cfg.Payments.ProviderTimeoutSeconds = 10
	}
	if cfg.Payments.Currency == "" {
		cfg.Payments.Currency = "BRL"
	}
	if cfg.Catalog.TimeoutSeconds == 0 {
		cfg.Catalog.TimeoutSeconds = 5
	}
	if cfg.Orders.NumberWidth == 0 {
		cfg.Orders.NumberWidth = 6
	}

	return &cfg, nil
}
