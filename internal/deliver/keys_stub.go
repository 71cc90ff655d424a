//go:build !windows && !linux

package deliver

import "errors"

type noKeys struct{}

func newKeys() Keys { return noKeys{} }

func (noKeys) Paste() error {
	return errors.New("paste keystroke not supported on this platform")
}
