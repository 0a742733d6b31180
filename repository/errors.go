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
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomoncle/anvil/database"
)

var (
	ErrConfiguration   = errors.New("repository: invalid model configuration")
	ErrNotFound        = errors.New("repository: record not found")
	ErrValidation      = errors.New("repository: validation failed")
	ErrUnknownRelation = errors.New("repository: unknown relation")
)

// ConfigurationError reports a model type the repository cannot be bound to.
type ConfigurationError struct {
	Model  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("repository: cannot bind model %s: %s", e.Model, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NotFoundError is returned when a lookup by key matches no row.
type NotFoundError struct {
	Model string
	ID    interface{}
	Err   error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("repository: %s with id %v not found", e.Model, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func (e *NotFoundError) Unwrap() error {
	if e.Err == nil {
		return sql.ErrNoRows
	}
	return e.Err
}

// ValidationError covers caller input the repository rejects and store
// constraint violations. Kind is UnknownErr for input errors.
type ValidationError struct {
	Kind  database.SQLError
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	msg := "repository: validation failed"
	if e.Kind != database.UnknownErr {
		msg += " (" + e.Kind.String() + ")"
	}
	if e.Field != "" {
		msg += " on " + e.Field
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Err: fmt.Errorf(format, args...)}
}

// storeError turns a constraint violation into a ValidationError and wraps
// anything else with the failed operation.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if kind := database.Classify(err); kind.IsConstraintViolation() {
		return &ValidationError{Kind: kind, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
