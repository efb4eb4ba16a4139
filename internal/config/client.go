// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig representa a configuração completa do ndrive-client.
type ClientConfig struct {
	Client  ClientInfo  `yaml:"client"`
	Server  ServerAddr  `yaml:"server"`
	Retry   RetryInfo   `yaml:"retry"`
	Logging LoggingInfo `yaml:"logging"`
}

// ClientInfo identifica o usuário da sessão. A senha pode ficar vazia
// no YAML; a variável de ambiente NDRIVE_PASSWORD tem precedência.
type ClientInfo struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Email    string `yaml:"email"` // usado apenas pelo comando register
}

// ServerAddr contém o endereço do ndrive-server.
type ServerAddr struct {
	Address string `yaml:"address"`
}

// RetryInfo contém configurações de retry com exponential backoff.
type RetryInfo struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// LoadClientConfig lê e valida o arquivo YAML de configuração do client.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading client config: %w", err)
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating client config: %w", err)
	}

	return &cfg, nil
}

func (c *ClientConfig) validate() error {
	if c.Client.Username == "" {
		return fmt.Errorf("client.username is required")
	}
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if env := os.Getenv("NDRIVE_PASSWORD"); env != "" {
		c.Client.Password = env
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.InitialDelay <= 0 {
		c.Retry.InitialDelay = 1 * time.Second
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = 5 * time.Minute
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	return nil
}
