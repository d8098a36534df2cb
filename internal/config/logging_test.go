package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger(t *testing.T) {
	defer func() {
		logrus.SetLevel(logrus.InfoLevel)
		logrus.SetOutput(os.Stderr)
		logrus.SetFormatter(&logrus.TextFormatter{})
	}()

	cfg := DefaultLoggingConfig()
	cfg.Level = "debug"
	cfg.Format = "json"
	require.NoError(t, SetupLogger(cfg))
	assert.Equal(t, "debug", GetGlobalLogLevel())

	cfg.Output = "file"
	cfg.File = filepath.Join(t.TempDir(), "viewer.log")
	require.NoError(t, SetupLogger(cfg))

	cfg.Output = "file"
	cfg.File = ""
	assert.Error(t, SetupLogger(cfg))
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel(" WARN ")
	require.NoError(t, err)
	assert.Equal(t, "warn", level)

	level, err = ParseLogLevel("verbose")
	assert.Error(t, err)
	assert.Equal(t, "info", level)
}

func TestLoggingConfigMerge(t *testing.T) {
	base := DefaultLoggingConfig()
	require.NoError(t, base.Merge(&LoggingConfig{Level: "trace", PionLevel: "debug"}))
	assert.Equal(t, "trace", base.Level)
	assert.Equal(t, "debug", base.PionLevel)
	assert.Equal(t, "text", base.Format)

	assert.Error(t, base.Merge(&LoggingConfig{Format: "xml"}))
}

func TestGetLoggerWithPrefix(t *testing.T) {
	entry := GetLoggerWithPrefix("session")
	assert.Equal(t, "session", entry.Data["component"])
}
