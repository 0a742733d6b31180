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
)

// Pluck returns column for every row the next terminal call of repo would
// select, e.g. Pluck[string](ctx, users, "email").
func Pluck[V any, T any](ctx context.Context, repo Repository[T], column string) ([]V, error) {
	values := make([]V, 0)
	if err := repo.Scan(ctx, []string{column}, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// PluckMap returns valueColumn keyed by keyColumn. Later rows win on
// duplicate keys.
func PluckMap[K comparable, V any, T any](ctx context.Context, repo Repository[T], valueColumn, keyColumn string) (map[K]V, error) {
	var (
		keys   []K
		values []V
	)
	if err := repo.Scan(ctx, []string{keyColumn, valueColumn}, &keys, &values); err != nil {
		return nil, err
	}
	result := make(map[K]V, len(keys))
	for i := range keys {
		result[keys[i]] = values[i]
	}
	return result, nil
}
