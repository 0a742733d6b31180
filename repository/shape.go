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
	"fmt"
	"reflect"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/anvil/types"
)

func (r *baseRepository[T]) ScopeQuery(fn ScopeFunc) Repository[T] {
	r.scope = fn
	return r
}

func (r *baseRepository[T]) ResetScope() Repository[T] {
	r.scope = nil
	return r
}

// With eager loads relations by Go field name. Nested paths such as
// "Posts.Comments" are passed to Bun as is.
func (r *baseRepository[T]) With(relations ...string) Repository[T] {
	for _, name := range relations {
		r.WithQuery(name, nil)
	}
	return r
}

func (r *baseRepository[T]) WithQuery(relation string, apply func(*bun.SelectQuery) *bun.SelectQuery) Repository[T] {
	root, _, _ := strings.Cut(relation, ".")
	if _, err := r.relation(root); err != nil {
		r.pending.fail(err)
		return r
	}
	r.pending.steps = append(r.pending.steps, step{
		projection: true,
		apply: func(_ bun.IDB, q *bun.SelectQuery) *bun.SelectQuery {
			if apply == nil {
				return q.Relation(relation)
			}
			return q.Relation(relation, apply)
		},
	})
	return r
}

// WithCount selects the number of related rows as <relation>_count. The
// model needs a matching scanonly field, e.g.
//
//	PostsCount int `bun:"posts_count,scanonly"`
func (r *baseRepository[T]) WithCount(relations ...string) Repository[T] {
	for _, name := range relations {
		if _, err := r.relation(name); err != nil {
			r.pending.fail(err)
			continue
		}
		column := countColumn(name)
		if !r.table.HasField(column) {
			r.pending.fail(invalid(column, "model %s has no scanonly field %q", r.table.TypeName, column))
			continue
		}
		r.pending.counts = append(r.pending.counts, name)
	}
	return r
}

func (r *baseRepository[T]) Has(relation string) Repository[T] {
	return r.WhereHas(relation, nil)
}

// WhereHas keeps rows with at least one related row matching fn. Inside fn
// ?TableAlias refers to the related table.
func (r *baseRepository[T]) WhereHas(relation string, fn func(*bun.SelectQuery) *bun.SelectQuery) Repository[T] {
	rel, err := r.relation(relation)
	if err != nil {
		r.pending.fail(err)
		return r
	}
	r.pending.steps = append(r.pending.steps, step{
		apply: func(db bun.IDB, q *bun.SelectQuery) *bun.SelectQuery {
			sub := r.relationQuery(db, rel, "1")
			if fn != nil {
				sub = fn(sub)
			}
			return q.Where("EXISTS (?)", sub)
		},
	})
	return r
}

func (r *baseRepository[T]) Hidden(columns ...string) Repository[T] {
	if err := r.checkColumns(columns); err != nil {
		r.pending.fail(err)
		return r
	}
	r.pending.hidden = append(r.pending.hidden, columns...)
	return r
}

func (r *baseRepository[T]) Visible(columns ...string) Repository[T] {
	if err := r.checkColumns(columns); err != nil {
		r.pending.fail(err)
		return r
	}
	r.pending.visible = append(r.pending.visible, columns...)
	return r
}

// OrderBy accepts table columns and the aliases added by WithCount.
func (r *baseRepository[T]) OrderBy(column string, direction types.Direction) Repository[T] {
	if !direction.IsValid() {
		r.pending.fail(invalid(column, "invalid sort direction %d", direction))
		return r
	}
	field, ok := r.table.FieldMap[column]
	if !ok {
		r.pending.fail(invalid(column, "unknown column %q on %s", column, r.table.Name))
		return r
	}
	alias := isScanOnly(field)
	r.pending.ordered = true
	r.pending.steps = append(r.pending.steps, step{
		projection: alias,
		apply: func(_ bun.IDB, q *bun.SelectQuery) *bun.SelectQuery {
			if alias {
				return q.OrderExpr("? "+direction.String(), bun.Ident(field.Name))
			}
			return q.OrderExpr("?TableAlias.? "+direction.String(), field.SQLName)
		},
	})
	return r
}

// Apply adds raw shaping to the next terminal call.
func (r *baseRepository[T]) Apply(fn func(*bun.SelectQuery) *bun.SelectQuery) Repository[T] {
	if fn == nil {
		return r
	}
	r.pending.steps = append(r.pending.steps, step{
		apply: func(_ bun.IDB, q *bun.SelectQuery) *bun.SelectQuery { return fn(q) },
	})
	return r
}

//------------------------------------------------------------------------------

// selectQuery builds the select for a terminal call: projection, shaping
// steps in configured order, relation counts, then the scope. filterOnly
// drops everything that adds result columns.
func (r *baseRepository[T]) selectQuery(db bun.IDB, c call, model interface{}, columns []string, filterOnly bool) *bun.SelectQuery {
	q := db.NewSelect().Model(model)
	if !filterOnly {
		if cols := r.projection(c, columns); len(cols) > 0 {
			q = q.Column(cols...)
		}
	}
	for _, s := range c.steps {
		if filterOnly && s.projection {
			continue
		}
		q = s.apply(db, q)
	}
	if !filterOnly {
		for _, name := range c.counts {
			sub := r.relationQuery(db, r.table.Relations[name], "count(*)")
			q = q.ColumnExpr("(?) AS ?", sub, bun.Ident(countColumn(name)))
		}
	}
	return r.applyScope(q, c.scope)
}

func (r *baseRepository[T]) applyScope(q *bun.SelectQuery, scope ScopeFunc) *bun.SelectQuery {
	if scope == nil {
		return q
	}
	return q.ApplyQueryBuilder(scope)
}

// projection resolves explicit columns, Visible and Hidden into a column
// list. Counts need an explicit list, otherwise Bun selects only them.
func (r *baseRepository[T]) projection(c call, columns []string) []string {
	cols := columns
	if len(cols) == 0 {
		cols = c.visible
	}
	if len(c.hidden) == 0 && (len(cols) > 0 || len(c.counts) == 0) {
		return cols
	}
	if len(cols) == 0 {
		for _, f := range r.table.Fields {
			cols = append(cols, f.Name)
		}
	}
	out := make([]string, 0, len(cols))
	for _, col := range cols {
		if !contains(c.hidden, col) {
			out = append(out, col)
		}
	}
	return out
}

// ordered falls back to primary key order when no OrderBy was configured.
func (r *baseRepository[T]) ordered(q *bun.SelectQuery, c call) *bun.SelectQuery {
	if c.ordered {
		return q
	}
	return q.OrderExpr("?TableAlias.? ASC", r.pk.SQLName)
}

func (r *baseRepository[T]) where(q *bun.SelectQuery, where types.Where) (*bun.SelectQuery, error) {
	for _, cond := range where {
		if err := cond.Err(); err != nil {
			return nil, &ValidationError{Field: cond.Field, Err: err}
		}
		op, ok := types.ParseOperator(string(cond.Operator))
		if !ok {
			return nil, invalid(cond.Field, "unsupported operator %q", cond.Operator)
		}
		field, ok := r.column(cond.Field)
		if !ok {
			return nil, invalid(cond.Field, "unknown column %q on %s", cond.Field, r.table.Name)
		}
		keyword := strings.ToUpper(string(op))

		switch {
		case op == types.OpIn || op == types.OpNotIn:
			v := reflect.ValueOf(cond.Value)
			if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
				return nil, invalid(cond.Field, "%s expects a slice, got %T", keyword, cond.Value)
			}
			if v.Len() == 0 {
				if op == types.OpIn {
					q = q.Where("1 = 0")
				}
				continue
			}
			q = q.Where("?TableAlias.? "+keyword+" (?)", field.SQLName, bun.In(cond.Value))
		case cond.Value == nil:
			switch op {
			case types.OpEq, types.OpIs:
				q = q.Where("?TableAlias.? IS NULL", field.SQLName)
			case types.OpNe, types.OpLtGt, types.OpIsNot:
				q = q.Where("?TableAlias.? IS NOT NULL", field.SQLName)
			default:
				return nil, invalid(cond.Field, "operator %q cannot compare with NULL", op)
			}
		default:
			q = q.Where("?TableAlias.? "+keyword+" ?", field.SQLName, cond.Value)
		}
	}
	return q, nil
}

func (r *baseRepository[T]) relation(name string) (*schema.Relation, error) {
	rel, ok := r.table.Relations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, r.table.TypeName, name)
	}
	return rel, nil
}

// relationQuery selects expr from the related table, correlated with the
// outer row of r's table.
func (r *baseRepository[T]) relationQuery(db bun.IDB, rel *schema.Relation, expr string) *bun.SelectQuery {
	q := db.NewSelect().Model(rel.JoinTable.ZeroIface).ColumnExpr(expr)
	if rel.Type == schema.ManyToManyRelation {
		m2m := rel.M2MTable
		q = q.Join("JOIN ? AS ?", m2m.SQLName, m2m.SQLAlias)
		for i := range rel.M2MJoinPKs {
			q = q.JoinOn("?.? = ?TableAlias.?", m2m.SQLAlias, rel.M2MJoinPKs[i].SQLName, rel.JoinPKs[i].SQLName)
		}
		for i := range rel.M2MBasePKs {
			q = q.Where("?.? = ?.?", m2m.SQLAlias, rel.M2MBasePKs[i].SQLName, r.table.SQLAlias, rel.BasePKs[i].SQLName)
		}
		return q
	}
	for i := range rel.JoinPKs {
		q = q.Where("?TableAlias.? = ?.?", rel.JoinPKs[i].SQLName, r.table.SQLAlias, rel.BasePKs[i].SQLName)
	}
	return q
}

// column looks up a stored column, excluding scanonly fields.
func (r *baseRepository[T]) column(name string) (*schema.Field, bool) {
	field, ok := r.table.FieldMap[name]
	if !ok || isScanOnly(field) {
		return nil, false
	}
	return field, true
}

func (r *baseRepository[T]) checkColumns(columns []string) error {
	for _, name := range columns {
		if _, ok := r.column(name); !ok {
			return invalid(name, "unknown column %q on %s", name, r.table.Name)
		}
	}
	return nil
}

func isScanOnly(field *schema.Field) bool {
	return field.Tag.HasOption("scanonly")
}
