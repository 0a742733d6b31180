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
	"fmt"

	"github.com/uptrace/bun"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/events"
	"github.com/tomoncle/anvil/repository"
	"github.com/tomoncle/anvil/types"
)

type Service[T any] interface {
	// Get returns a single entity by its identifier.
	Get(ctx context.Context, id any) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities matching every condition.
	List(ctx context.Context, where types.Where) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	Count(ctx context.Context) (int, error)

	// Create inserts an entity built from attrs.
	Create(ctx context.Context, attrs types.Attributes) (*T, error)

	// Save inserts a pre-built entity.
	Save(ctx context.Context, model *T) (*T, error)

	// Update merges attrs into the entity with the given identifier.
	Update(ctx context.Context, attrs types.Attributes, id any) (*T, error)

	// UpdateOrCreate updates the first entity matching match or creates one.
	UpdateOrCreate(ctx context.Context, match, values types.Attributes) (*T, error)

	// Delete removes an entity by its identifier.
	Delete(ctx context.Context, id any) (int64, error)

	// Transaction runs fn with a repository bound to a transaction. Events
	// are dispatched inside the transaction.
	Transaction(ctx context.Context, fn func(ctx context.Context, repo repository.Repository[T]) error) error

	// Repository returns a fresh repository carrying the service handlers.
	Repository() (repository.Repository[T], error)
}

type baseServiceImpl[T any] struct {
	db      func() bun.IDB
	handler repository.EventHandler[T]
}

// NewService returns a Service on the global database connection. Handlers
// receive every lifecycle event.
func NewService[T any](handlers ...repository.EventHandler[T]) Service[T] {
	return newBaseServiceImpl[T](func() bun.IDB {
		if db := database.GetDB(); db != nil {
			return db
		}
		return nil
	}, handlers)
}

// NewServiceWithDB returns a Service bound to db.
func NewServiceWithDB[T any](db bun.IDB, handlers ...repository.EventHandler[T]) Service[T] {
	return newBaseServiceImpl[T](func() bun.IDB { return db }, handlers)
}

func newBaseServiceImpl[T any](db func() bun.IDB, handlers []repository.EventHandler[T]) *baseServiceImpl[T] {
	s := &baseServiceImpl[T]{db: db}
	switch len(handlers) {
	case 0:
	case 1:
		s.handler = handlers[0]
	default:
		s.handler = events.Multi(handlers...)
	}
	return s
}

func (s *baseServiceImpl[T]) Repository() (repository.Repository[T], error) {
	db := s.db()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	repo, err := repository.New[T](db)
	if err != nil {
		return nil, err
	}
	if s.handler != nil {
		repo.SetHandlers(s.handler)
	}
	return repo, nil
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.Find(ctx, id)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.All(ctx)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, where types.Where) ([]*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.FindWhere(ctx, where)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.Paginate(ctx, page)
}

func (s *baseServiceImpl[T]) Count(ctx context.Context) (int, error) {
	repo, err := s.Repository()
	if err != nil {
		return 0, err
	}
	return repo.Count(ctx)
}

func (s *baseServiceImpl[T]) Create(ctx context.Context, attrs types.Attributes) (*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.Create(ctx, attrs)
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model *T) (*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.Insert(ctx, model)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, attrs types.Attributes, id any) (*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.Update(ctx, attrs, id)
}

func (s *baseServiceImpl[T]) UpdateOrCreate(ctx context.Context, match, values types.Attributes) (*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.UpdateOrCreate(ctx, match, values)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) (int64, error) {
	repo, err := s.Repository()
	if err != nil {
		return 0, err
	}
	return repo.Delete(ctx, id)
}

func (s *baseServiceImpl[T]) Transaction(ctx context.Context, fn func(ctx context.Context, repo repository.Repository[T]) error) error {
	repo, err := s.Repository()
	if err != nil {
		return err
	}
	return repo.DB().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, repo.WithTx(tx))
	})
}
