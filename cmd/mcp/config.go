package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type GatewayEntry struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}

type MCPConfig struct {
	Gateways       []GatewayEntry `yaml:"gateways"`
	DefaultGateway string         `yaml:"default_gateway"`
}

func defaultConfig() *MCPConfig {
	return &MCPConfig{
		Gateways:       []GatewayEntry{{ID: "local", Address: "localhost:5000"}},
		DefaultGateway: "local",
	}
}

// LoadConfig reads path, writing a default config there first if it does
// not exist.
func LoadConfig(path string) (*MCPConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := defaultConfig()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshalling default config: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &MCPConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if len(cfg.Gateways) == 0 {
		return nil, fmt.Errorf("config %s lists no gateways", path)
	}
	if cfg.DefaultGateway == "" {
		cfg.DefaultGateway = cfg.Gateways[0].ID
	}
	return cfg, nil
}
