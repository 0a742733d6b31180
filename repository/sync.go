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
	"fmt"
	"reflect"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/anvil/types"
)

// Sync makes the many-to-many relation of row id point at exactly ids.
// Missing pivot rows are inserted and, when detaching, rows for other keys
// are removed, all in one transaction. Detached keys are reported as read
// from the pivot table.
func (r *baseRepository[T]) Sync(ctx context.Context, id any, relation string, ids []interface{}, detaching bool) (*types.SyncResult, error) {
	c := r.begin()
	if c.err != nil {
		return nil, c.err
	}
	rel, err := r.relation(relation)
	if err != nil {
		return nil, err
	}
	if rel.Type != schema.ManyToManyRelation {
		return nil, invalid(relation, "relation %s.%s is not many-to-many", r.table.TypeName, relation)
	}
	if len(rel.M2MBasePKs) != 1 || len(rel.M2MJoinPKs) != 1 {
		return nil, invalid(relation, "composite pivot keys are not supported")
	}

	model, err := r.find(ctx, r.db, c.unprojected(), id, nil)
	if err != nil {
		return nil, err
	}

	pivot := rel.M2MTable
	baseCol, joinCol := rel.M2MBasePKs[0], rel.M2MJoinPKs[0]
	baseKey := rel.BasePKs[0].Value(reflect.ValueOf(model).Elem()).Interface()
	result := &types.SyncResult{Attached: make([]interface{}, 0), Detached: make([]interface{}, 0)}

	err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current := reflect.New(reflect.SliceOf(joinCol.IndirectType))
		err := tx.NewSelect().
			Model(pivot.ZeroIface).
			Column(joinCol.Name).
			Where("? = ?", baseCol.SQLName, baseKey).
			Scan(ctx, current.Interface())
		if err != nil {
			return fmt.Errorf("select %s: %w", pivot.Name, err)
		}
		keys := current.Elem()

		existing := make(map[string]struct{}, keys.Len())
		for i := 0; i < keys.Len(); i++ {
			existing[keyOf(keys.Index(i).Interface())] = struct{}{}
		}

		wanted := make(map[string]struct{}, len(ids))
		for _, related := range ids {
			key := keyOf(related)
			if _, seen := wanted[key]; seen {
				continue
			}
			wanted[key] = struct{}{}
			if _, ok := existing[key]; ok {
				continue
			}

			row := reflect.New(pivot.Type)
			if err := assign(baseCol, baseCol.Value(row.Elem()), baseKey); err != nil {
				return &ValidationError{Field: baseCol.Name, Err: err}
			}
			if err := assign(joinCol, joinCol.Value(row.Elem()), related); err != nil {
				return &ValidationError{Field: joinCol.Name, Err: err}
			}
			if _, err := tx.NewInsert().Model(row.Interface()).Exec(ctx); err != nil {
				return storeError("attach "+relation, err)
			}
			result.Attached = append(result.Attached, related)
		}

		if !detaching {
			return nil
		}
		for i := 0; i < keys.Len(); i++ {
			key := keys.Index(i).Interface()
			if _, keep := wanted[keyOf(key)]; !keep {
				result.Detached = append(result.Detached, key)
			}
		}
		if len(result.Detached) == 0 {
			return nil
		}
		_, err = tx.NewDelete().
			Model(pivot.ZeroIface).
			Where("? = ?", baseCol.SQLName, baseKey).
			Where("? IN (?)", joinCol.SQLName, bun.In(result.Detached)).
			Exec(ctx)
		return storeError("detach "+relation, err)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *baseRepository[T]) SyncWithoutDetaching(ctx context.Context, id any, relation string, ids []interface{}) (*types.SyncResult, error) {
	return r.Sync(ctx, id, relation, ids, false)
}

func keyOf(v interface{}) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}
