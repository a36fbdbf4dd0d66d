package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevelsAreRouted(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	Debugf("debug %d", 1)
	Infof("info %s", "two")
	Warnf("warn")
	Errorf("error %v", true)

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, "debug 1", entries[0].Message)
	assert.Equal(t, "info two", entries[1].Message)
	assert.Equal(t, zap.WarnLevel, entries[2].Level)
	assert.Equal(t, "error true", entries[3].Message)
}

func TestInitLoggingRejectsUnknownLevel(t *testing.T) {
	err := InitLogging("loud", "json")
	assert.Error(t, err)
}

func TestInitLogging(t *testing.T) {
	require.NoError(t, InitLogging("debug", "console"))
	defer SetLogger(zap.NewNop())
	assert.NotNil(t, Logger())
}
