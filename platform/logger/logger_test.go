package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContextAddsRunID(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("production", &buf)

	ctx := context.WithValue(context.Background(), RunIDKey, "run-123")
	log.WithContext(ctx).QueryFailed("lisboa", 3, "timeout", errors.New("deadline"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "query_failed", entry["msg"])
	assert.Equal(t, "run-123", entry["run_id"])
	assert.Equal(t, "lisboa", entry["term"])
	assert.Equal(t, float64(3), entry["attempts"])
}

func TestDevelopmentUsesTextHandler(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("development", &buf)
	log.Debug("visible at debug")

	assert.Contains(t, buf.String(), "msg=\"visible at debug\"")
}
