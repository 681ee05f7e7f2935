package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "json", Prefix: "ledger"}, &buf)

	l.Info("transfer committed", "transfer_id", "tr-1", "amount", 10)
	l.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "transfer committed", rec["msg"])
	assert.Equal(t, "tr-1", rec["transfer_id"])
}

func TestLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "verbose", Format: "unknown"}, &buf)

	l.Debug("dropped")
	l.Info("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "logfmt"}, &buf)

	l.Debug("replay cache hit", "key", "k1")
	assert.Contains(t, buf.String(), "key=k1")
}
