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

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tomoncle/anvil/repository"
)

// DefaultChannelPrefix is used when a publisher is built with an empty prefix.
const DefaultChannelPrefix = "anvil"

// Envelope is the JSON payload published for every event.
type Envelope[T any] struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Table      string    `json:"table"`
	OccurredAt time.Time `json:"occurred_at"`
	Model      *T        `json:"model,omitempty"`
	Original   *T        `json:"original,omitempty"`
	Models     []*T      `json:"models,omitempty"`
}

// RedisPublisher publishes events to <prefix>:<table>:<kind>.
type RedisPublisher[T any] struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedisPublisher[T any](client redis.Cmdable, prefix string) *RedisPublisher[T] {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher[T]{client: client, prefix: prefix, now: time.Now}
}

// Channel returns the channel events of kind on table are published to.
func (p *RedisPublisher[T]) Channel(table string, kind repository.EventKind) string {
	return fmt.Sprintf("%s:%s:%s", p.prefix, table, kind.String())
}

func (p *RedisPublisher[T]) Dispatch(ctx context.Context, event repository.Event[T]) error {
	envelope := p.envelope(event)
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", envelope.Kind, err)
	}
	channel := p.Channel(envelope.Table, event.Kind())
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func (p *RedisPublisher[T]) envelope(event repository.Event[T]) *Envelope[T] {
	e := &Envelope[T]{
		ID:         uuid.NewString(),
		Kind:       event.Kind().String(),
		Table:      "unknown",
		OccurredAt: p.now().UTC(),
	}
	if src := event.Source(); src != nil {
		e.Table = src.TableName()
	}
	switch ev := event.(type) {
	case repository.Created[T]:
		e.Model = ev.Model
	case repository.Updated[T]:
		e.Model, e.Original = ev.Model, ev.Original
	case repository.Deleted[T]:
		e.Models = ev.Models
	}
	return e
}
