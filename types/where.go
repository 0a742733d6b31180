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

package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Operator is a whitelisted SQL comparison operator.
type Operator string

const (
	OpEq      Operator = "="
	OpNe      Operator = "!="
	OpLtGt    Operator = "<>"
	OpLt      Operator = "<"
	OpLte     Operator = "<="
	OpGt      Operator = ">"
	OpGte     Operator = ">="
	OpLike    Operator = "like"
	OpNotLike Operator = "not like"
	OpILike   Operator = "ilike"
	OpIn      Operator = "in"
	OpNotIn   Operator = "not in"
	OpIs      Operator = "is"
	OpIsNot   Operator = "is not"
)

var operators = map[Operator]struct{}{
	OpEq: {}, OpNe: {}, OpLtGt: {}, OpLt: {}, OpLte: {}, OpGt: {}, OpGte: {},
	OpLike: {}, OpNotLike: {}, OpILike: {}, OpIn: {}, OpNotIn: {}, OpIs: {}, OpIsNot: {},
}

// ParseOperator normalizes case and whitespace and reports whether the
// result is a supported operator.
func ParseOperator(s string) (Operator, bool) {
	op := Operator(strings.Join(strings.Fields(strings.ToLower(s)), " "))
	if op == "" {
		return OpEq, true
	}
	_, ok := operators[op]
	return op, ok
}

// ErrMalformedCondition marks a WhereMap tuple that is not {field, op, value}.
var ErrMalformedCondition = errors.New("malformed condition")

// Condition is a single conjunctive filter: Field Operator Value.
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}

	err error
}

// Err reports why WhereMap could not build the condition.
func (c Condition) Err() error { return c.err }

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}

// Eq builds an equality condition.
func Eq(field string, value interface{}) Condition {
	return Condition{Field: field, Operator: OpEq, Value: value}
}

// Cond builds a condition with an explicit operator.
func Cond(field, op string, value interface{}) Condition {
	return Condition{Field: field, Operator: Operator(op), Value: value}
}

// Where is an ordered list of conditions joined with AND.
type Where []Condition

// And appends conditions and returns the extended list.
func (w Where) And(conds ...Condition) Where {
	return append(w, conds...)
}

// WhereMap converts a field mapping into conditions. A value is either a
// literal (equality) or a three element tuple []interface{}{field, op, value}.
// Any other []interface{} yields a condition whose Err is set.
// Keys are visited in sorted order.
func WhereMap(m map[string]interface{}) Where {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := make(Where, 0, len(m))
	for _, k := range keys {
		if tuple, ok := m[k].([]interface{}); ok {
			w = append(w, tupleCondition(k, tuple))
			continue
		}
		w = append(w, Eq(k, m[k]))
	}
	return w
}

func tupleCondition(key string, tuple []interface{}) Condition {
	if len(tuple) != 3 {
		return Condition{Field: key, err: fmt.Errorf("%w: %s wants {field, operator, value}, got %d elements",
			ErrMalformedCondition, key, len(tuple))}
	}
	field, ok := tuple[0].(string)
	if !ok || field == "" {
		return Condition{Field: key, err: fmt.Errorf("%w: %s field must be a non-empty string, got %T",
			ErrMalformedCondition, key, tuple[0])}
	}
	var op Operator
	switch v := tuple[1].(type) {
	case Operator:
		op = v
	case string:
		op = Operator(v)
	default:
		return Condition{Field: field, err: fmt.Errorf("%w: %s operator must be a string, got %T",
			ErrMalformedCondition, key, tuple[1])}
	}
	return Condition{Field: field, Operator: op, Value: tuple[2]}
}
