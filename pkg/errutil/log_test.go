// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

package errutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogError_OopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("AUTH_UNKNOWN_USER").With("username", "nadia").Errorf("no such user")
	LogError(logger, "login failed", err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "login failed", entry["msg"])
	assert.Equal(t, "AUTH_UNKNOWN_USER", entry["code"])
	assert.Contains(t, entry["error"], "no such user")

	ctx, ok := entry["context"].(map[string]any)
	require.True(t, ok, "expected context map, got %T", entry["context"])
	assert.Equal(t, "nadia", ctx["username"])
}

func TestLogError_PlainError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	LogError(logger, "something broke", errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "something broke", entry["msg"])
	assert.Equal(t, "boom", entry["error"])
	assert.NotContains(t, entry, "code")
}

func TestLogError_OopsWithoutCode(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	LogError(logger, "wrapped", oops.Errorf("no code attached"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.NotContains(t, entry, "code")
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "AUTH_USERNAME_TAKEN", CodeOf(oops.Code("AUTH_USERNAME_TAKEN").Errorf("taken")))
	assert.Empty(t, CodeOf(errors.New("plain")))
	assert.Empty(t, CodeOf(nil))
}
