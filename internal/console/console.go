// Package console turns operator key presses on an interactive terminal into
// signals, shared by the skippable wait and the login confirmation.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"sjsage522/promobot/pkg/errors"
)

// Interactive reports whether f is a terminal
func Interactive(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Signals returns a channel that receives one value per line read from in.
// It returns nil, which never fires, when in is not an interactive terminal.
func Signals(in *os.File) <-chan struct{} {
	if !Interactive(in) {
		return nil
	}
	return Lines(in)
}

// Lines signals every line read from r until it ends. Signals nobody is
// waiting for are coalesced.
func Lines(r io.Reader) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}()
	return ch
}

// Drain discards a pending signal
func Drain(signals <-chan struct{}) {
	for {
		select {
		case <-signals:
		default:
			return
		}
	}
}

// Confirmer asks the operator to press ENTER
type Confirmer struct {
	Signals <-chan struct{}
	Out     io.Writer
}

// NewConfirmer prompts on stdout and waits on signals
func NewConfirmer(signals <-chan struct{}) *Confirmer {
	return &Confirmer{Signals: signals, Out: os.Stdout}
}

// Confirm prints prompt and blocks until a signal arrives or ctx is done
func (c *Confirmer) Confirm(ctx context.Context, prompt string) error {
	if c.Signals == nil {
		return errors.NewConfiguration("an interactive terminal is required to confirm: "+prompt, nil)
	}
	Drain(c.Signals)
	fmt.Fprintf(c.Out, "\n%s\n>>> ", prompt)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.Signals:
		return nil
	}
}
