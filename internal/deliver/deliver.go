// Package deliver hands the final text to the focused application through
// the clipboard.
package deliver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog"

	"flemme/internal/logging"
)

// ErrDeliveryFailed wraps clipboard and keystroke failures.
var ErrDeliveryFailed = errors.New("deliver: delivery failed")

// Clipboard reads and writes the system clipboard.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// Keys sends the paste shortcut to the focused window.
type Keys interface {
	Paste() error
}

type systemClipboard struct{}

func (systemClipboard) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// Deliverer copies text and optionally pastes it.
type Deliverer struct {
	Clipboard Clipboard
	Keys      Keys
	// Delay between writing the clipboard and sending the shortcut.
	Delay time.Duration
	// Restore puts the previous clipboard content back after pasting.
	Restore      bool
	RestoreDelay time.Duration

	log zerolog.Logger
}

// New returns a Deliverer on the system clipboard and keyboard.
func New(delay time.Duration, restore bool) *Deliverer {
	return &Deliverer{
		Clipboard:    systemClipboard{},
		Keys:         newKeys(),
		Delay:        delay,
		Restore:      restore,
		RestoreDelay: 120 * time.Millisecond,
		log:          logging.WithComponent("deliver"),
	}
}

// Copy places text on the clipboard.
func (d *Deliverer) Copy(ctx context.Context, text string) error {
	if err := d.Clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("%w: clipboard write: %v", ErrDeliveryFailed, err)
	}
	d.log.Debug().Int("chars", len(text)).Msg("copied to clipboard")
	return nil
}

// Paste copies text, waits Delay, then sends the paste shortcut.
func (d *Deliverer) Paste(ctx context.Context, text string) error {
	var orig string
	if d.Restore {
		orig, _ = d.Clipboard.ReadAll()
	}
	if err := d.Copy(ctx, text); err != nil {
		return err
	}
	if err := sleep(ctx, d.Delay); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	if d.Keys == nil {
		return fmt.Errorf("%w: no keyboard backend", ErrDeliveryFailed)
	}
	if err := d.Keys.Paste(); err != nil {
		return fmt.Errorf("%w: paste keystroke: %v", ErrDeliveryFailed, err)
	}
	if d.Restore {
		_ = sleep(ctx, d.RestoreDelay)
		_ = d.Clipboard.WriteAll(orig)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
