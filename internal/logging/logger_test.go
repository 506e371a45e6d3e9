package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "debug", "")
	logger.Debug("wallet funded", "user_id", "u1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "wallet funded", entry["msg"])
	assert.Equal(t, "u1", entry["user_id"])
}

func TestNewWithWriter_TextAndInvalidLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "verbose", "text")
	logger.Debug("hidden")
	logger.Info("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.Contains(out, "msg=shown"), out)
}
