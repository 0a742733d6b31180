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

	"github.com/uptrace/bun"

	"github.com/tomoncle/anvil/types"
)

// ScopeFunc constrains every query of a terminal call.
type ScopeFunc func(bun.QueryBuilder) bun.QueryBuilder

// ScopePolicy decides when a stored scope is cleared.
type ScopePolicy int

const (
	// ScopeOnce clears the scope after every terminal call.
	ScopeOnce ScopePolicy = iota
	// ScopeSticky keeps the scope until ResetScope.
	ScopeSticky
)

func (p ScopePolicy) String() string {
	if p == ScopeSticky {
		return "sticky"
	}
	return "once"
}

// ReadRepository defines the lookup operations. Every method is terminal.
type ReadRepository[T any] interface {
	All(ctx context.Context, columns ...string) ([]*T, error)

	Get(ctx context.Context, columns ...string) ([]*T, error)

	// First returns nil, nil when no row matches.
	First(ctx context.Context, columns ...string) (*T, error)

	FirstOrNew(ctx context.Context, attrs types.Attributes) (*T, error)

	FirstOrCreate(ctx context.Context, attrs types.Attributes) (*T, error)

	Paginate(ctx context.Context, page *types.PageRequest, columns ...string) (*types.Pagination[T], error)

	SimplePaginate(ctx context.Context, page *types.PageRequest, columns ...string) (*types.SimplePagination[T], error)

	Find(ctx context.Context, id any, columns ...string) (*T, error)

	FindByField(ctx context.Context, field string, value any, columns ...string) ([]*T, error)

	FindWhere(ctx context.Context, where types.Where, columns ...string) ([]*T, error)

	FindWhereIn(ctx context.Context, field string, values any, columns ...string) ([]*T, error)

	FindWhereNotIn(ctx context.Context, field string, values any, columns ...string) ([]*T, error)

	Count(ctx context.Context) (int, error)

	// Scan selects columns into dest, one slice per column.
	Scan(ctx context.Context, columns []string, dest ...interface{}) error
}

// WriteRepository defines the mutating operations. Each dispatches its
// lifecycle event after the write succeeded.
type WriteRepository[T any] interface {
	Create(ctx context.Context, attrs types.Attributes) (*T, error)

	Insert(ctx context.Context, model *T) (*T, error)

	Update(ctx context.Context, attrs types.Attributes, id any) (*T, error)

	UpdateOrCreate(ctx context.Context, match, values types.Attributes) (*T, error)

	Delete(ctx context.Context, id any) (int64, error)

	DeleteWhere(ctx context.Context, where types.Where) (int64, error)

	Sync(ctx context.Context, id any, relation string, ids []interface{}, detaching bool) (*types.SyncResult, error)

	SyncWithoutDetaching(ctx context.Context, id any, relation string, ids []interface{}) (*types.SyncResult, error)
}

// QueryShaper collects shaping for the next terminal call.
type QueryShaper[T any] interface {
	ScopeQuery(fn ScopeFunc) Repository[T]
	ResetScope() Repository[T]
	With(relations ...string) Repository[T]
	WithQuery(relation string, apply func(*bun.SelectQuery) *bun.SelectQuery) Repository[T]
	WithCount(relations ...string) Repository[T]
	Has(relation string) Repository[T]
	WhereHas(relation string, fn func(*bun.SelectQuery) *bun.SelectQuery) Repository[T]
	Hidden(columns ...string) Repository[T]
	Visible(columns ...string) Repository[T]
	OrderBy(column string, direction types.Direction) Repository[T]
	Apply(fn func(*bun.SelectQuery) *bun.SelectQuery) Repository[T]
}

// Repository is the full data access contract for model T.
type Repository[T any] interface {
	ReadRepository[T]
	WriteRepository[T]
	QueryShaper[T]

	// Query previews the select the next terminal call would start from.
	Query() *bun.SelectQuery
	DB() bun.IDB
	TableName() string
	WithTx(db bun.IDB) Repository[T]
	ResetModel() error
	SetScopePolicy(policy ScopePolicy) Repository[T]

	CreatedHandler() EventHandler[T]
	SetCreatedHandler(h EventHandler[T]) Repository[T]
	UpdatedHandler() EventHandler[T]
	SetUpdatedHandler(h EventHandler[T]) Repository[T]
	DeletedHandler() EventHandler[T]
	SetDeletedHandler(h EventHandler[T]) Repository[T]
	// SetHandlers registers h for all three event kinds.
	SetHandlers(h EventHandler[T]) Repository[T]
	LastEvent() Event[T]
}
