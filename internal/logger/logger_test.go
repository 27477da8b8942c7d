package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWithLevel(t *testing.T) {
	var buf bytes.Buffer
	level := ParseLevel("info")
	log := NewWithLevel("fundd", level, &buf)

	log.Debug("hidden")
	log.Info("relayer ready", zap.String("address", "0xabc"))
	require.NoError(t, log.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "relayer ready", entry["msg"])
	assert.Equal(t, "fundd", entry["service"])
	assert.Equal(t, "0xabc", entry["address"])
	assert.Contains(t, entry, "caller")
	assert.Contains(t, entry, "ts")

	buf.Reset()
	level.SetLevel(zap.DebugLevel)
	log.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.WarnLevel, ParseLevel("warn").Level())
	assert.Equal(t, zap.InfoLevel, ParseLevel("loud").Level())
	assert.Equal(t, zap.InfoLevel, ParseLevel("").Level())
}
