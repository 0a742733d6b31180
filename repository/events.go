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

package repository

import (
	"context"

	"github.com/tomoncle/anvil/types"
)

// EventKind identifies a lifecycle event variant.
type EventKind int

const (
	EventCreated EventKind = iota
	EventUpdated
	EventDeleted
)

var _ types.BaseEnum = EventCreated

func (k EventKind) IsValid() bool {
	return k >= EventCreated && k <= EventDeleted
}

func (k EventKind) Number() int {
	if !k.IsValid() {
		return types.IllegalValue
	}
	return int(k)
}

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventDeleted:
		return "deleted"
	default:
		return types.IllegalName
	}
}

func (k EventKind) Name() string { return k.String() }

func (k EventKind) Desc() string {
	if !k.IsValid() {
		return types.IllegalDesc
	}
	return "model " + k.String()
}

// Event is a lifecycle notification. The variants are Created, Updated and
// Deleted.
type Event[T any] interface {
	Kind() EventKind
	Source() Repository[T]
	isEvent()
}

// Created is dispatched after a row was inserted.
type Created[T any] struct {
	Repository Repository[T]
	Model      *T
}

func (Created[T]) Kind() EventKind         { return EventCreated }
func (e Created[T]) Source() Repository[T] { return e.Repository }
func (Created[T]) isEvent()                {}

// Updated is dispatched after a row was updated. Original is the state
// before the update, or nil when UpdateOrCreate inserted the row.
type Updated[T any] struct {
	Repository Repository[T]
	Model      *T
	Original   *T
}

func (Updated[T]) Kind() EventKind         { return EventUpdated }
func (e Updated[T]) Source() Repository[T] { return e.Repository }
func (Updated[T]) isEvent()                {}

// Deleted is dispatched after rows were removed. Models hold their state
// before deletion.
type Deleted[T any] struct {
	Repository Repository[T]
	Models     []*T
}

func (Deleted[T]) Kind() EventKind         { return EventDeleted }
func (e Deleted[T]) Source() Repository[T] { return e.Repository }
func (Deleted[T]) isEvent()                {}

// EventHandler receives lifecycle events.
type EventHandler[T any] interface {
	Dispatch(ctx context.Context, event Event[T]) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc[T any] func(ctx context.Context, event Event[T]) error

func (f EventHandlerFunc[T]) Dispatch(ctx context.Context, event Event[T]) error {
	return f(ctx, event)
}
