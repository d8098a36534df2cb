package webrtc

import (
	"testing"

	"github.com/pion/logging"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestLogrusLoggerFactory_FiltersByPionLevel(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.TraceLevel)

	logger := NewLogrusLoggerFactory("warn", logrus.NewEntry(base)).NewLogger("ice")
	logger.Debug("hidden")
	logger.Infof("hidden %d", 1)
	logger.Warn("shown")
	logger.Errorf("shown %s", "too")

	entries := hook.AllEntries()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "shown", entries[0].Message)
		assert.Equal(t, logrus.WarnLevel, entries[0].Level)
		assert.Equal(t, "ice", entries[0].Data["scope"])
		assert.Equal(t, "shown too", entries[1].Message)
	}
}

func TestParsePionLevel(t *testing.T) {
	assert.Equal(t, logging.LogLevelDisabled, parsePionLevel("off"))
	assert.Equal(t, logging.LogLevelTrace, parsePionLevel(" TRACE "))
	assert.Equal(t, logging.LogLevelWarn, parsePionLevel("bogus"))

	base, hook := test.NewNullLogger()
	logger := NewLogrusLoggerFactory("disabled", logrus.NewEntry(base)).NewLogger("dtls")
	logger.Error("nothing")
	assert.Empty(t, hook.AllEntries())
}
