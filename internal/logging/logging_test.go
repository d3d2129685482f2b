package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
)

func TestNew_WritesToFileWithRunID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ztc.log")

	log, err := New(config.LoggingConfig{Level: "warn", File: path}, false)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("visible")
	_ = log.Sync() // stdout sync fails on pipes

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "run_id")
}

func TestNew_VerboseForcesDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ztc.log")

	log, err := New(config.LoggingConfig{Level: "error", File: path}, true)
	require.NoError(t, err)
	log.Debug("debug line")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "debug line"))
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}

func TestProgress(t *testing.T) {
	fields := Progress(0, 3)
	require.Len(t, fields, 2)
	assert.Equal(t, int64(1), fields[0].Integer)
	assert.Equal(t, int64(3), fields[1].Integer)
}
