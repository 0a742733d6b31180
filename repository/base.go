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
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/types"
)

type baseRepository[T any] struct {
	db      bun.IDB
	table   *schema.Table
	pk      *schema.Field
	pending *pending
	scope   ScopeFunc
	policy  ScopePolicy
	created EventHandler[T]
	updated EventHandler[T]
	deleted EventHandler[T]
	last    Event[T]
	logger  database.Logger
}

// New returns a repository for model T on db. T must be a Bun model struct
// with exactly one primary key.
func New[T any](db bun.IDB) (Repository[T], error) {
	r := &baseRepository[T]{db: db, pending: &pending{}, logger: database.GetLogger()}
	if err := r.ResetModel(); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNew is like New but panics on a model configuration error.
func MustNew[T any](db bun.IDB) Repository[T] {
	r, err := New[T](db)
	if err != nil {
		panic(err)
	}
	return r
}

func resolveTable[T any](db bun.IDB) (table *schema.Table, pk *schema.Field, err error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	name := typ.String()
	if typ.Kind() != reflect.Struct {
		return nil, nil, &ConfigurationError{Model: name, Reason: "model must be a struct, got " + typ.Kind().String()}
	}
	if db == nil {
		return nil, nil, &ConfigurationError{Model: name, Reason: "database handle is nil"}
	}

	// Bun panics on models it cannot map.
	defer func() {
		if p := recover(); p != nil {
			table, pk, err = nil, nil, &ConfigurationError{Model: name, Reason: fmt.Sprint(p)}
		}
	}()
	table = db.Dialect().Tables().Get(typ)
	if table == nil || table.Name == "" {
		return nil, nil, &ConfigurationError{Model: name, Reason: "not a bun model"}
	}
	if len(table.PKs) != 1 {
		return nil, nil, &ConfigurationError{
			Model:  name,
			Reason: fmt.Sprintf("expected exactly one primary key, found %d", len(table.PKs)),
		}
	}
	return table, table.PKs[0], nil
}

func (r *baseRepository[T]) ResetModel() error {
	table, pk, err := resolveTable[T](r.db)
	if err != nil {
		return err
	}
	r.table, r.pk = table, pk
	r.pending = &pending{}
	r.scope = nil
	return nil
}

func (r *baseRepository[T]) DB() bun.IDB { return r.db }

func (r *baseRepository[T]) TableName() string { return r.table.Name }

func (r *baseRepository[T]) Query() *bun.SelectQuery {
	return r.selectQuery(r.db, r.peek(), new(T), nil, false)
}

// WithTx returns a copy bound to db, usually a bun.Tx. The copy carries the
// handlers, the scope and a copy of the pending shaping.
func (r *baseRepository[T]) WithTx(db bun.IDB) Repository[T] {
	cp := *r
	cp.db = db
	cp.pending = r.pending.clone()
	return &cp
}

func (r *baseRepository[T]) SetScopePolicy(policy ScopePolicy) Repository[T] {
	r.policy = policy
	return r
}

func (r *baseRepository[T]) CreatedHandler() EventHandler[T] { return r.created }

func (r *baseRepository[T]) SetCreatedHandler(h EventHandler[T]) Repository[T] {
	r.created = h
	return r
}

func (r *baseRepository[T]) UpdatedHandler() EventHandler[T] { return r.updated }

func (r *baseRepository[T]) SetUpdatedHandler(h EventHandler[T]) Repository[T] {
	r.updated = h
	return r
}

func (r *baseRepository[T]) DeletedHandler() EventHandler[T] { return r.deleted }

func (r *baseRepository[T]) SetDeletedHandler(h EventHandler[T]) Repository[T] {
	r.deleted = h
	return r
}

func (r *baseRepository[T]) SetHandlers(h EventHandler[T]) Repository[T] {
	r.created, r.updated, r.deleted = h, h, h
	return r
}

func (r *baseRepository[T]) LastEvent() Event[T] { return r.last }

//------------------------------------------------------------------------------

func (r *baseRepository[T]) All(ctx context.Context, columns ...string) ([]*T, error) {
	return r.list(ctx, r.begin(), columns, nil)
}

func (r *baseRepository[T]) Get(ctx context.Context, columns ...string) ([]*T, error) {
	return r.list(ctx, r.begin(), columns, nil)
}

func (r *baseRepository[T]) First(ctx context.Context, columns ...string) (*T, error) {
	return r.first(ctx, r.db, r.begin(), columns, nil)
}

func (r *baseRepository[T]) FirstOrNew(ctx context.Context, attrs types.Attributes) (*T, error) {
	model, err := r.first(ctx, r.db, r.begin(), nil, attrs.Where())
	if err != nil || model != nil {
		return model, err
	}
	model = new(T)
	if _, err := r.fill(model, attrs); err != nil {
		return nil, err
	}
	return model, nil
}

func (r *baseRepository[T]) FirstOrCreate(ctx context.Context, attrs types.Attributes) (*T, error) {
	model, err := r.first(ctx, r.db, r.begin(), nil, attrs.Where())
	if err != nil || model != nil {
		return model, err
	}
	model = new(T)
	if _, err := r.fill(model, attrs); err != nil {
		return nil, err
	}
	if err := r.insert(ctx, model); err != nil {
		return nil, err
	}
	return model, nil
}

func (r *baseRepository[T]) Paginate(ctx context.Context, page *types.PageRequest, columns ...string) (*types.Pagination[T], error) {
	c := r.begin()
	if c.err != nil {
		return nil, c.err
	}
	pagination := types.NewDefaultPagination[T](page.GetPage(), page.GetPageSize())
	total, err := r.selectQuery(r.db, c, new(T), nil, false).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", r.table.Name, err)
	}
	pagination.Total = total
	if total == 0 {
		return pagination, nil
	}

	models := make([]*T, 0, page.GetPageSize())
	err = r.ordered(r.selectQuery(r.db, c, &models, columns, false), c).
		Offset(page.GetOffset()).
		Limit(page.GetPageSize()).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", r.table.Name, err)
	}
	pagination.Items = models
	return pagination, nil
}

func (r *baseRepository[T]) SimplePaginate(ctx context.Context, page *types.PageRequest, columns ...string) (*types.SimplePagination[T], error) {
	c := r.begin()
	if c.err != nil {
		return nil, c.err
	}
	size := page.GetPageSize()
	models := make([]*T, 0, size+1)
	err := r.ordered(r.selectQuery(r.db, c, &models, columns, false), c).
		Offset(page.GetOffset()).
		Limit(size + 1).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", r.table.Name, err)
	}

	result := &types.SimplePagination[T]{Page: page.GetPage(), PageSize: size, Items: models}
	if len(models) > size {
		result.HasMore = true
		result.Items = models[:size]
	}
	return result, nil
}

func (r *baseRepository[T]) Find(ctx context.Context, id any, columns ...string) (*T, error) {
	return r.find(ctx, r.db, r.begin(), id, columns)
}

func (r *baseRepository[T]) FindByField(ctx context.Context, field string, value any, columns ...string) ([]*T, error) {
	return r.list(ctx, r.begin(), columns, types.Where{types.Eq(field, value)})
}

func (r *baseRepository[T]) FindWhere(ctx context.Context, where types.Where, columns ...string) ([]*T, error) {
	return r.list(ctx, r.begin(), columns, where)
}

func (r *baseRepository[T]) FindWhereIn(ctx context.Context, field string, values any, columns ...string) ([]*T, error) {
	where := types.Where{{Field: field, Operator: types.OpIn, Value: values}}
	return r.list(ctx, r.begin(), columns, where)
}

func (r *baseRepository[T]) FindWhereNotIn(ctx context.Context, field string, values any, columns ...string) ([]*T, error) {
	where := types.Where{{Field: field, Operator: types.OpNotIn, Value: values}}
	return r.list(ctx, r.begin(), columns, where)
}

func (r *baseRepository[T]) Count(ctx context.Context) (int, error) {
	c := r.begin()
	if c.err != nil {
		return 0, c.err
	}
	n, err := r.selectQuery(r.db, c, new(T), nil, false).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.table.Name, err)
	}
	return n, nil
}

func (r *baseRepository[T]) Scan(ctx context.Context, columns []string, dest ...interface{}) error {
	c := r.begin()
	if c.err != nil {
		return c.err
	}
	if len(columns) == 0 {
		return invalid("", "no columns to scan")
	}
	if err := r.checkColumns(columns); err != nil {
		return err
	}
	q := r.selectQuery(r.db, c, (*T)(nil), nil, true).Column(columns...)
	if err := r.ordered(q, c).Scan(ctx, dest...); err != nil {
		return fmt.Errorf("scan %s: %w", r.table.Name, err)
	}
	return nil
}

func (r *baseRepository[T]) list(ctx context.Context, c call, columns []string, where types.Where) ([]*T, error) {
	if c.err != nil {
		return nil, c.err
	}
	models := make([]*T, 0)
	q, err := r.where(r.selectQuery(r.db, c, &models, columns, false), where)
	if err != nil {
		return nil, err
	}
	if err := r.ordered(q, c).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select %s: %w", r.table.Name, err)
	}
	return models, nil
}

// first returns nil, nil when nothing matches.
func (r *baseRepository[T]) first(ctx context.Context, db bun.IDB, c call, columns []string, where types.Where) (*T, error) {
	if c.err != nil {
		return nil, c.err
	}
	model := new(T)
	q, err := r.where(r.selectQuery(db, c, model, columns, false), where)
	if err != nil {
		return nil, err
	}
	err = r.ordered(q, c).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", r.table.Name, err)
	}
	return model, nil
}

func (r *baseRepository[T]) find(ctx context.Context, db bun.IDB, c call, id any, columns []string) (*T, error) {
	model, err := r.first(ctx, db, c, columns, types.Where{types.Eq(r.pk.Name, id)})
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, &NotFoundError{Model: r.table.TypeName, ID: id, Err: sql.ErrNoRows}
	}
	return model, nil
}

//------------------------------------------------------------------------------

func (r *baseRepository[T]) Create(ctx context.Context, attrs types.Attributes) (*T, error) {
	c := r.begin()
	if c.err != nil {
		return nil, c.err
	}
	model := new(T)
	if _, err := r.fill(model, attrs); err != nil {
		return nil, err
	}
	if err := r.insert(ctx, model); err != nil {
		return nil, err
	}
	return model, r.notify(ctx, Created[T]{Repository: r, Model: model})
}

func (r *baseRepository[T]) Insert(ctx context.Context, model *T) (*T, error) {
	c := r.begin()
	if c.err != nil {
		return nil, c.err
	}
	if model == nil {
		return nil, invalid("", "nil %s", r.table.TypeName)
	}
	if err := r.insert(ctx, model); err != nil {
		return nil, err
	}
	return model, r.notify(ctx, Created[T]{Repository: r, Model: model})
}

func (r *baseRepository[T]) Update(ctx context.Context, attrs types.Attributes, id any) (*T, error) {
	model, err := r.find(ctx, r.db, r.begin().unprojected(), id, nil)
	if err != nil {
		return nil, err
	}
	original := clone(model)
	columns, err := r.fill(model, attrs)
	if err != nil {
		return nil, err
	}
	if err := r.update(ctx, model, columns); err != nil {
		return nil, err
	}
	return model, r.notify(ctx, Updated[T]{Repository: r, Model: model, Original: original})
}

func (r *baseRepository[T]) UpdateOrCreate(ctx context.Context, match, values types.Attributes) (*T, error) {
	model, err := r.first(ctx, r.db, r.begin().unprojected(), nil, match.Where())
	if err != nil {
		return nil, err
	}

	if model == nil {
		model = new(T)
		if _, err := r.fill(model, match.Merge(values)); err != nil {
			return nil, err
		}
		if err := r.insert(ctx, model); err != nil {
			return nil, err
		}
		return model, r.notify(ctx, Updated[T]{Repository: r, Model: model})
	}

	original := clone(model)
	columns, err := r.fill(model, values)
	if err != nil {
		return nil, err
	}
	if err := r.update(ctx, model, columns); err != nil {
		return nil, err
	}
	return model, r.notify(ctx, Updated[T]{Repository: r, Model: model, Original: original})
}

func (r *baseRepository[T]) Delete(ctx context.Context, id any) (int64, error) {
	model, err := r.find(ctx, r.db, r.begin().unprojected(), id, nil)
	if err != nil {
		return 0, err
	}
	original := clone(model)
	res, err := r.db.NewDelete().Model(model).WherePK().Exec(ctx)
	if err != nil {
		return 0, storeError("delete "+r.table.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("delete "+r.table.Name, err)
	}
	if n == 0 {
		return 0, nil
	}
	return n, r.notify(ctx, Deleted[T]{Repository: r, Models: []*T{original}})
}

func (r *baseRepository[T]) DeleteWhere(ctx context.Context, where types.Where) (int64, error) {
	models, err := r.list(ctx, r.begin().unprojected(), nil, where)
	if err != nil || len(models) == 0 {
		return 0, err
	}
	snapshots := make([]*T, len(models))
	for i, model := range models {
		snapshots[i] = clone(model)
	}

	res, err := r.db.NewDelete().Model(&models).WherePK().Exec(ctx)
	if err != nil {
		return 0, storeError("delete "+r.table.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("delete "+r.table.Name, err)
	}
	if n == 0 {
		return 0, nil
	}
	return n, r.notify(ctx, Deleted[T]{Repository: r, Models: snapshots})
}

func (r *baseRepository[T]) insert(ctx context.Context, model *T) error {
	r.touch(model, true, "created_at", "updated_at")
	_, err := r.db.NewInsert().Model(model).Exec(ctx)
	return storeError("insert "+r.table.Name, err)
}

// update writes only columns, plus updated_at when the model has it.
func (r *baseRepository[T]) update(ctx context.Context, model *T, columns []string) error {
	if !contains(columns, "updated_at") {
		columns = append(columns, r.touch(model, false, "updated_at")...)
	}
	if len(columns) == 0 {
		return nil
	}
	_, err := r.db.NewUpdate().Model(model).Column(columns...).WherePK().Exec(ctx)
	return storeError("update "+r.table.Name, err)
}

// notify hands event to the handler registered for its kind. Dispatch runs
// after the write, so a handler error never undoes it.
func (r *baseRepository[T]) notify(ctx context.Context, event Event[T]) error {
	var handler EventHandler[T]
	switch event.(type) {
	case Created[T]:
		handler = r.created
	case Updated[T]:
		handler = r.updated
	case Deleted[T]:
		handler = r.deleted
	}
	if handler == nil {
		return nil
	}

	r.last = event
	kind := event.Kind().String()
	r.logger.Debug("Dispatching repository event", "event", kind, "table", r.table.Name)
	if err := handler.Dispatch(ctx, event); err != nil {
		r.logger.Error("Repository event handler failed", "event", kind, "table", r.table.Name, "error", err)
		return fmt.Errorf("dispatch %s event for %s: %w", kind, r.table.Name, err)
	}
	return nil
}
