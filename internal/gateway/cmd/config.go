package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Server struct {
		Port         string        `yaml:"port"`
		PingInterval time.Duration `yaml:"ping_interval"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`
	Bridge struct {
		URL string `yaml:"nats_url"`
	} `yaml:"bridge"`
}

func defaultFileConfig() *fileConfig {
	var cfg fileConfig
	cfg.Server.Port = "8080"
	cfg.Server.PingInterval = 30 * time.Second
	cfg.Server.ReadTimeout = 60 * time.Second
	cfg.Server.WriteTimeout = 10 * time.Second
	return &cfg
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaultFileConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
