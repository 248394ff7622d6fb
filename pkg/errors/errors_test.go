package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPipelineErrorFormatting(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewNetwork("listing", "fetch page 2", cause)

	assert.Equal(t, "[network] listing: fetch page 2 - connection reset", err.Error())
	assert.True(t, err.IsRetryable())
	assert.ErrorIs(t, err, cause)

	rl := NewRateLimit("listing", 30*time.Second)
	assert.Equal(t, "[rate_limit] listing: rate limited for 30s", rl.Error())
	assert.False(t, rl.IsRetryable())
}

func TestIsType(t *testing.T) {
	wrapped := fmt.Errorf("cycle: %w", NewPersistence("seen", "flush", stderrors.New("read-only")))

	assert.True(t, IsType(wrapped, ErrorTypePersistence))
	assert.False(t, IsType(wrapped, ErrorTypeNetwork))
	assert.False(t, IsType(stderrors.New("plain"), ErrorTypePersistence))
}

func TestNewPanic(t *testing.T) {
	err := NewPanic("worker", "índice fuera de rango")
	assert.Equal(t, "[panic] worker: recovered: índice fuera de rango", err.Error())
	assert.True(t, IsType(err, ErrorTypePanic))
	assert.False(t, err.IsRetryable())
}
