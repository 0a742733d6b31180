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
	"time"
	"unicode"

	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/anvil/types"
)

var timeType = reflect.TypeOf(time.Time{})

// fill assigns attrs to model by column name and returns the assigned
// columns in key order.
func (r *baseRepository[T]) fill(model *T, attrs types.Attributes) ([]string, error) {
	strct := reflect.ValueOf(model).Elem()
	columns := make([]string, 0, len(attrs))
	for _, name := range attrs.Keys() {
		field, ok := r.column(name)
		if !ok {
			return nil, invalid(name, "unknown column %q on %s", name, r.table.Name)
		}
		if err := assign(field, field.Value(strct), attrs[name]); err != nil {
			return nil, &ValidationError{Field: name, Err: err}
		}
		columns = append(columns, field.Name)
	}
	return columns, nil
}

// touch stamps the named time columns with the current time. With onlyZero
// set, columns that already hold a value are left alone. It returns the
// columns it changed.
func (r *baseRepository[T]) touch(model *T, onlyZero bool, names ...string) []string {
	now := time.Now()
	strct := reflect.ValueOf(model).Elem()
	var touched []string
	for _, name := range names {
		field, ok := r.column(name)
		if !ok || field.IndirectType != timeType {
			continue
		}
		fv := field.Value(strct)
		if onlyZero && !fv.IsZero() {
			continue
		}
		if fv.Kind() == reflect.Ptr {
			t := now
			fv.Set(reflect.ValueOf(&t))
		} else {
			fv.Set(reflect.ValueOf(now))
		}
		touched = append(touched, field.Name)
	}
	return touched
}

func assign(field *schema.Field, fv reflect.Value, value interface{}) error {
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	v := reflect.ValueOf(value)
	switch {
	case v.Type().AssignableTo(fv.Type()):
		fv.Set(v)
	case fv.Kind() == reflect.Ptr && v.Type().AssignableTo(fv.Type().Elem()):
		p := reflect.New(fv.Type().Elem())
		p.Elem().Set(v)
		fv.Set(p)
	case convertible(v.Type(), fv.Type()):
		fv.Set(v.Convert(fv.Type()))
	default:
		if err := field.ScanWithCheck(fv, value); err != nil {
			return fmt.Errorf("cannot assign %T to %s: %w", value, fv.Type(), err)
		}
	}
	return nil
}

func convertible(from, to reflect.Type) bool {
	if isNumber(from.Kind()) && isNumber(to.Kind()) {
		return true
	}
	return from.Kind() == reflect.String && to.Kind() == reflect.String
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// clone is a shallow copy; relation slices and pointers stay shared.
func clone[T any](model *T) *T {
	if model == nil {
		return nil
	}
	cp := *model
	return &cp
}

// countColumn maps a relation field name to its count alias:
// "BlogPosts" becomes "blog_posts_count".
func countColumn(relation string) string {
	var b strings.Builder
	runes := []rune(relation)
	for i, c := range runes {
		if unicode.IsUpper(c) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			c = unicode.ToLower(c)
		}
		b.WriteRune(c)
	}
	b.WriteString("_count")
	return b.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
