//go:build !windows

package hotkey

// NewSystem returns the platform's global hotkey listener.
func NewSystem() (Listener, error) {
	return nil, ErrUnsupported
}
