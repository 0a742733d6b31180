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

package database

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type widget struct {
	bun.BaseModel `bun:"table:widgets"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull,unique"`
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(level, msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf("%s %s %v", level, msg, fields))
}

func (l *recordingLogger) SetLevel(LogLevel)                        {}
func (l *recordingLogger) Debug(msg string, fields ...interface{}) { l.record("DEBUG", msg, fields...) }
func (l *recordingLogger) Info(msg string, fields ...interface{})  { l.record("INFO", msg, fields...) }
func (l *recordingLogger) Warn(msg string, fields ...interface{})  { l.record("WARN", msg, fields...) }
func (l *recordingLogger) Error(msg string, fields ...interface{}) { l.record("ERROR", msg, fields...) }

func memoryConfig() *ConnectionConfig {
	cfg := DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	cfg.MaxOpenConns = 1
	return cfg
}

func connectMemory(t *testing.T) AbstractDatabaseManager {
	t.Helper()
	manager := NewDatabaseManager(memoryConfig())
	manager.SetLogger(NopLogger{})
	require.NoError(t, manager.Connect(context.Background()))
	t.Cleanup(func() { _ = manager.Disconnect() })
	return manager
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want SQLError
	}{
		{"no rows", fmt.Errorf("find: %w", sql.ErrNoRows), NoRowsErr},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, DuplicateKeyErr},
		{"mysql fk", &mysql.MySQLError{Number: 1452}, ForeignKeyViolationErr},
		{"pq unique", &pq.Error{Code: "23505"}, DuplicateKeyErr},
		{"pq not null", &pq.Error{Code: "23502"}, NotNullViolationErr},
		{"pq missing table", &pq.Error{Code: "42P01"}, NoTableErr},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"), DuplicateKeyErr},
		{"sqlite not null", errors.New("NOT NULL constraint failed: users.name"), NotNullViolationErr},
		{"sqlite no table", errors.New("SQL logic error: no such table: users (1)"), NoTableErr},
		{"other", errors.New("connection refused"), UnknownErr},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Classify(c.err))
		})
	}

	is, kind := IsSqlError(nil)
	assert.False(t, is)
	assert.Equal(t, UnknownErr, kind)
}

func TestSQLErrorString(t *testing.T) {
	assert.Equal(t, "duplicate_key", DuplicateKeyErr.String())
	assert.Equal(t, "unknown", SQLError(99).String())
	assert.True(t, DuplicateKeyErr.IsConstraintViolation())
	assert.False(t, NoTableErr.IsConstraintViolation())
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_PASSWORD", "s3cret")
	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_CONN_MAX_LIFETIME", "60")
	t.Setenv("DB_ENABLE_QUERY_LOG", "true")

	cfg := DefaultConnectionConfig()
	cfg.Type = "mysql"
	cfg.Username = "kept"
	OverrideFromEnv(cfg)

	assert.Equal(t, "postgres", cfg.Type)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "kept", cfg.Username)
	assert.Equal(t, "s3cret", cfg.Password)
	assert.Equal(t, 7, cfg.MaxOpenConns)
	assert.Equal(t, time.Minute, cfg.ConnMaxLifetime)
	assert.True(t, cfg.EnableQueryLog)
}

func TestCreateFromConfigRejectsUnknownType(t *testing.T) {
	_, err := NewDatabaseFactory().CreateFromConfig(&ConnectionConfig{Type: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")

	_, err = NewDatabaseFactory().CreateFromConfig(nil)
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := &ConnectionConfig{Username: "u", Password: "p", Host: "h", Port: 5432, DBName: "d", ConnectTimeout: 5 * time.Second}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable&connect_timeout=5", PostgresDSN(c))
	assert.Contains(t, MySQLDSN(c), "u:p@tcp(h:5432)/d?charset=utf8mb4")

	assert.Equal(t, ":memory:", SQLiteDSN(&ConnectionConfig{}))
	assert.Equal(t, "app.db", SQLiteDSN(&ConnectionConfig{DBName: "app"}))
	assert.Equal(t, "file:x?mode=memory", SQLiteDSN(&ConnectionConfig{DBName: "file:x?mode=memory"}))
}

func TestModelRegistryOrder(t *testing.T) {
	r := NewModelRegistry()
	first := &widget{}
	r.Register(
		NewModelAdapter("join", 30),
		NewModelAdapter(first, 10),
		NewModelAdapter("second", 10),
	)
	assert.Equal(t, []interface{}{first, "second", "join"}, r.Instances())
	assert.Len(t, r.Models(), 3)
}

func TestManagerLifecycle(t *testing.T) {
	manager := connectMemory(t)
	ctx := context.Background()

	require.NoError(t, manager.Ping(ctx))
	status := manager.HealthCheck(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.Connected)
	assert.Equal(t, 1, status.MaxOpenConns)
	assert.Equal(t, 1, manager.GetStats().MaxOpenConns)
	assert.NotNil(t, manager.GetSQLDB())

	require.NoError(t, manager.Disconnect())
	assert.Nil(t, manager.GetDB())
	assert.Error(t, manager.Ping(ctx))
	assert.False(t, manager.HealthCheck(ctx).Healthy)
	assert.Equal(t, &DBStats{}, manager.GetStats())
}

func TestMigrationManagerRunsOnce(t *testing.T) {
	manager := connectMemory(t)
	ctx := context.Background()
	db := manager.GetDB()

	registry := NewModelRegistry()
	registry.Register(NewModelAdapter((*widget)(nil), 1))

	seeded := 0
	newManager := func() *MigrationManager {
		return NewMigrationManagerWithRegistry(db, nil, registry).AddMigration(MigrationItem{
			Version: "001",
			Name:    "seed_widgets",
			Up: func(ctx context.Context, db bun.IDB) error {
				seeded++
				_, err := db.NewInsert().Model(&widget{Name: "seed"}).Exec(ctx)
				return err
			},
		})
	}

	require.NoError(t, newManager().RunMigrations(ctx))
	require.NoError(t, newManager().RunMigrations(ctx))
	assert.Equal(t, 1, seeded)

	applied, err := newManager().GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "000", applied[0].Version)
	assert.Equal(t, "001", applied[1].Version)

	count, err := db.NewSelect().Model((*widget)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFailedMigrationRollsBack(t *testing.T) {
	manager := connectMemory(t)
	ctx := context.Background()

	mm := NewMigrationManagerWithRegistry(manager.GetDB(), nil, NewModelRegistry()).AddMigration(MigrationItem{
		Version: "001",
		Up: func(ctx context.Context, db bun.IDB) error {
			return errors.New("boom")
		},
	})
	err := mm.RunMigrations(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001")

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "000", applied[0].Version)
}

func TestQueryHook(t *testing.T) {
	var buf bytes.Buffer
	hook := NewQueryHook(false, &buf)
	ctx := context.Background()

	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Empty(t, buf.String())

	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now(), Err: sql.ErrNoRows})
	assert.Empty(t, buf.String())

	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "INSERT INTO widgets", StartTime: time.Now(), Err: errors.New("boom")})
	assert.Contains(t, buf.String(), "INSERT INTO widgets")
	assert.Contains(t, buf.String(), "boom")

	buf.Reset()
	EnableSilent(true)
	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "DELETE", StartTime: time.Now(), Err: errors.New("x")})
	EnableSilent(false)
	assert.Empty(t, buf.String())

	verbose := NewQueryHook(true, &buf)
	verbose.AfterQuery(ctx, &bun.QueryEvent{Query: "UPDATE widgets", StartTime: time.Now()})
	assert.Contains(t, buf.String(), "UPDATE widgets")
}

func TestSlowQueryHook(t *testing.T) {
	logger := &recordingLogger{}
	hook := NewSlowQueryHook(10*time.Millisecond, logger)
	ctx := context.Background()

	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT fast", StartTime: time.Now()})
	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT slow", StartTime: time.Now().Add(-time.Second)})
	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT failed", StartTime: time.Now().Add(-time.Second), Err: errors.New("x")})

	require.Len(t, logger.lines, 1)
	assert.Contains(t, logger.lines[0], "SELECT slow")
}

func TestToFields(t *testing.T) {
	f := toFields([]interface{}{"a", 1, "b"})
	assert.Equal(t, 1, f["a"])
	assert.Equal(t, "b", f["!extra"])
	assert.Empty(t, toFields(nil))
}

func TestGlobalLogger(t *testing.T) {
	defer InitLogger(nil)

	custom := &recordingLogger{}
	InitLogger(custom)
	assert.Same(t, custom, GetLogger())

	InitLogger(nil)
	_, ok := GetLogger().(*DefaultLogger)
	assert.True(t, ok)
}
