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
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/events"
	"github.com/tomoncle/anvil/repository"
	"github.com/tomoncle/anvil/utils"
)

var (
	mu            sync.RWMutex
	redisClient   *redis.Client
	channelPrefix = events.DefaultChannelPrefix
)

// Init configures logging, opens the global database and, when an address
// is configured, connects the Redis client used by Publisher.
func Init(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if cfg.Logging.Level != "" {
		utils.ConfigureLogLevel(cfg.Logging.Level)
	}
	if cfg.Logging.Format != "" {
		utils.ConfigureConsoleLogFormat(cfg.Logging.Format)
	}

	if _, err := database.InitDB(ctx, &cfg.Database); err != nil {
		return err
	}

	var client *redis.Client
	if cfg.Events.Redis.Addr != "" {
		var err error
		if client, err = events.NewRedisClient(ctx, &cfg.Events.Redis); err != nil {
			_ = database.CloseDB()
			return err
		}
	}

	mu.Lock()
	previous := redisClient
	redisClient = client
	channelPrefix = cfg.Events.ChannelPrefix
	mu.Unlock()
	if previous != nil {
		_ = previous.Close()
	}
	database.GetLogger().Info("anvil initialized", "redis", client != nil)
	return nil
}

// Close releases the Redis client and the global database.
func Close() error {
	mu.Lock()
	client := redisClient
	redisClient = nil
	mu.Unlock()

	var errs []error
	if client != nil {
		errs = append(errs, client.Close())
	}
	errs = append(errs, database.CloseDB())
	return errors.Join(errs...)
}

// Publisher returns a Redis publisher for T, or nil when Init configured no
// Redis address. A nil handler is skipped by repositories and services.
func Publisher[T any]() repository.EventHandler[T] {
	mu.RLock()
	defer mu.RUnlock()
	if redisClient == nil {
		return nil
	}
	return events.NewRedisPublisher[T](redisClient, channelPrefix)
}
