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

package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"trace":   logrus.TraceLevel,
		"DEBUG":   logrus.DebugLevel,
		"":        logrus.InfoLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"bogus":   logrus.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
}

func TestNewLoggerRegistry(t *testing.T) {
	a := NewLogger("REGISTRY")
	b := NewLogger("REGISTRY")
	assert.Same(t, a, b)
	assert.Contains(t, LoggerNames(), "REGISTRY")

	assert.True(t, SetLoggerLevel("REGISTRY", "error"))
	assert.Equal(t, logrus.ErrorLevel, a.GetLevel())
	assert.False(t, SetLoggerLevel("NOPE", "error"))
}

func TestLoggerWritesToConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	SetConsoleOutput(&buf)
	defer SetConsoleOutput(nil)

	l := NewLogger("CONSOLE")
	l.SetLevel(logrus.InfoLevel)
	l.WithField("table", "users").Info("hello")
	l.Debug("suppressed")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "table=users")
	assert.Contains(t, out, "CONSOLE")
	assert.NotContains(t, out, "suppressed")
}

func TestLog4jColorFormatter(t *testing.T) {
	f := &Log4jColorFormatter{LoggerName: "DATABASE", NameWidth: 4, NoColor: true}
	entry := &logrus.Entry{
		Time:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "slow",
		Data:    logrus.Fields{"b": 2, "a": 1},
	}
	b, err := f.Format(entry)
	require.NoError(t, err)
	line := string(b)
	assert.Contains(t, line, "2025-01-02 03:04:05.000")
	assert.Contains(t, line, "WARNING")
	assert.Contains(t, line, "DATA")
	assert.NotContains(t, line, "DATABASE")
	assert.Contains(t, line, "slow a=1 b=2")
	assert.NotContains(t, line, "\x1b[")
}

func TestJSONLogFormatter(t *testing.T) {
	f := &JSONLogFormatter{LoggerName: "EVENTS"}
	entry := &logrus.Entry{
		Time:    time.Now(),
		Level:   logrus.ErrorLevel,
		Message: "failed",
		Data:    logrus.Fields{"error": errors.New("boom")},
	}
	b, err := f.Format(entry)
	require.NoError(t, err)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &rec))
	assert.Equal(t, "EVENTS", rec["logger"])
	assert.Equal(t, "error", rec["level"])
	assert.Equal(t, "boom", rec["fields"].(map[string]interface{})["error"])
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("ANVIL_TEST_STR", "x")
	t.Setenv("ANVIL_TEST_BOOL", "true")
	t.Setenv("ANVIL_TEST_BAD_BOOL", "maybe")
	t.Setenv("ANVIL_TEST_INT", "42")
	t.Setenv("ANVIL_TEST_SECONDS", "3")

	assert.Equal(t, "x", EnvDefaultString("ANVIL_TEST_STR", "d"))
	assert.Equal(t, "d", EnvDefaultString("ANVIL_TEST_UNSET", "d"))
	assert.True(t, EnvDefaultBool("ANVIL_TEST_BOOL", false))
	assert.True(t, EnvDefaultBool("ANVIL_TEST_BAD_BOOL", true))
	assert.Equal(t, 42, EnvDefaultInt("ANVIL_TEST_INT", 0))
	assert.Equal(t, 7, EnvDefaultInt("ANVIL_TEST_UNSET", 7))
	assert.Equal(t, 3*time.Second, EnvDefaultSeconds("ANVIL_TEST_SECONDS", 0))
}
