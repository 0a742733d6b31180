/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package anvil

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/events"
	"github.com/tomoncle/anvil/utils"
)

// Config is the root configuration file layout.
type Config struct {
	Database database.Config `yaml:"database" json:"database"`
	Events   EventsConfig    `yaml:"events" json:"events"`
	Logging  LoggingConfig   `yaml:"logging" json:"logging"`
}

// EventsConfig enables the Redis publisher when Redis.Addr is set.
type EventsConfig struct {
	Redis         events.RedisConfig `yaml:"redis" json:"redis"`
	ChannelPrefix string             `yaml:"channel_prefix" json:"channel_prefix"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // console or json
}

// DefaultConfig returns the defaults every loaded file is merged onto.
func DefaultConfig() *Config {
	return &Config{
		Database: *database.DefaultConfig(),
		Events: EventsConfig{
			Redis:         *events.DefaultRedisConfig(),
			ChannelPrefix: events.DefaultChannelPrefix,
		},
	}
}

// LoadConfig reads a yaml file over DefaultConfig and applies the DB_* and
// REDIS_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() {
	database.OverrideFromEnv(&c.Database.Connection)
	c.Events.Redis.Addr = utils.EnvDefaultString("REDIS_ADDR", c.Events.Redis.Addr)
	c.Events.Redis.Password = utils.EnvDefaultString("REDIS_PASSWORD", c.Events.Redis.Password)
	c.Events.Redis.DB = utils.EnvDefaultInt("REDIS_DB", c.Events.Redis.DB)
}

// SaveConfig writes cfg as yaml, creating parent directories as needed.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
