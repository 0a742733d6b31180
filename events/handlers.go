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
	"errors"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/repository"
)

type multi[T any] []repository.EventHandler[T]

// Multi dispatches to every handler, even after one fails, and joins the
// errors.
func Multi[T any](handlers ...repository.EventHandler[T]) repository.EventHandler[T] {
	m := make(multi[T], 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			m = append(m, h)
		}
	}
	return m
}

func (m multi[T]) Dispatch(ctx context.Context, event repository.Event[T]) error {
	var errs []error
	for _, h := range m {
		if err := h.Dispatch(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type logging[T any] struct {
	logger database.Logger
}

// Logging logs every event at info level. A nil logger uses
// database.GetLogger at dispatch time.
func Logging[T any](logger database.Logger) repository.EventHandler[T] {
	return logging[T]{logger: logger}
}

func (l logging[T]) Dispatch(_ context.Context, event repository.Event[T]) error {
	logger := l.logger
	if logger == nil {
		logger = database.GetLogger()
	}
	table := "unknown"
	if src := event.Source(); src != nil {
		table = src.TableName()
	}
	rows := 1
	if deleted, ok := event.(repository.Deleted[T]); ok {
		rows = len(deleted.Models)
	}
	logger.Info("Repository event", "event", event.Kind().String(), "table", table, "rows", rows)
	return nil
}
