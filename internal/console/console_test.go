package console

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "sjsage522/promobot/pkg/errors"
)

func TestSignalsOnNonTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, Interactive(f))
	assert.Nil(t, Signals(f))
}

func TestLinesAndConfirm(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	signals := Lines(r)

	var out strings.Builder
	c := &Confirmer{Signals: signals, Out: &out}

	done := make(chan error, 1)
	go func() { done <- c.Confirm(context.Background(), "Presiona ENTER") }()

	// give Confirm time to drain and prompt
	time.Sleep(20 * time.Millisecond)
	_, err := w.Write([]byte("\n"))
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("confirm did not return")
	}
	assert.Contains(t, out.String(), "Presiona ENTER")
}

func TestConfirmCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := &Confirmer{Signals: make(chan struct{}), Out: io.Discard}
	assert.ErrorIs(t, c.Confirm(ctx, "x"), context.DeadlineExceeded)
}

func TestConfirmWithoutTerminal(t *testing.T) {
	c := &Confirmer{Out: io.Discard}
	err := c.Confirm(context.Background(), "x")
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeConfiguration))
}

func TestDrain(t *testing.T) {
	ch := make(chan struct{}, 1)
	ch <- struct{}{}
	Drain(ch)
	select {
	case <-ch:
		t.Fatal("signal not drained")
	default:
	}
}
