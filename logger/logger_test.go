package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComponentLoggers(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	var buf bytes.Buffer
	InitWithWriter(&buf)

	ForPipeline().Info().Str("run_id", "abc").Msg("cycle started")
	ForSource("listing").Warn().Msg("page skipped")

	out := buf.String()
	assert.Contains(t, out, "cycle started")
	assert.Contains(t, out, "pipeline")
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "listing")
}

func TestLogLevelFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PROMOBOT_ENVIRONMENT", "production")
	var buf bytes.Buffer
	InitWithWriter(&buf)

	Debug("hidden %d", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.False(t, IsDebugEnabled())

	LogWarn("store", errors.New("disk full"), "flush failed for %s", "seen")
	assert.Contains(t, buf.String(), "flush failed for seen")
	assert.Contains(t, buf.String(), "disk full")
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	assert.Equal(t, "info", getLogLevel().String())
}
