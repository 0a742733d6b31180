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
	"sync"

	"github.com/tomoncle/anvil/repository"
)

type subscriber[T any] struct {
	kinds   []repository.EventKind
	handler repository.EventHandler[T]
}

func (s subscriber[T]) wants(kind repository.EventKind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	for _, k := range s.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Observers is an in-process subscriber list. Subscribers run in
// registration order and the first error stops the dispatch.
type Observers[T any] struct {
	mu          sync.RWMutex
	subscribers []subscriber[T]
}

func NewObservers[T any]() *Observers[T] {
	return &Observers[T]{}
}

// Subscribe registers h for the given kinds, or for every kind when none
// are given.
func (o *Observers[T]) Subscribe(h repository.EventHandler[T], kinds ...repository.EventKind) *Observers[T] {
	if h == nil {
		return o
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subscribers = append(o.subscribers, subscriber[T]{kinds: kinds, handler: h})
	return o
}

func (o *Observers[T]) SubscribeFunc(fn func(ctx context.Context, event repository.Event[T]) error, kinds ...repository.EventKind) *Observers[T] {
	return o.Subscribe(repository.EventHandlerFunc[T](fn), kinds...)
}

func (o *Observers[T]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subscribers)
}

func (o *Observers[T]) Dispatch(ctx context.Context, event repository.Event[T]) error {
	o.mu.RLock()
	subscribers := make([]subscriber[T], len(o.subscribers))
	copy(subscribers, o.subscribers)
	o.mu.RUnlock()

	for _, s := range subscribers {
		if !s.wants(event.Kind()) {
			continue
		}
		if err := s.handler.Dispatch(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
