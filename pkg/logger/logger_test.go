package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New("account", Config{Level: "debug", Format: "json", Output: &buf})

	log.WithField("caller", "0xabc").Info("dispatch")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "account", entry["component"])
	assert.Equal(t, "0xabc", entry["caller"])
	assert.Equal(t, "dispatch", entry["msg"])
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log := New("x", Config{Level: "loud", Output: &bytes.Buffer{}})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNamed(t *testing.T) {
	var buf bytes.Buffer
	parent := New("demo", Config{Format: "json", Output: &buf})
	child := parent.Named("entrypoint")

	child.Warn("replayed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "entrypoint", entry["component"])
	assert.Equal(t, "entrypoint", child.Component())
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	require.NotNil(t, log)
	log.Info("discarded")
}
