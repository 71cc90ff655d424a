//go:build !whispercpp

package whisper

import "flemme/internal/transcribe"

// NativeAvailable reports whether the native whisper backend is compiled in.
func NativeAvailable() bool { return false }

func newNative(string) (transcribe.Model, error) {
	return nil, ErrNativeUnavailable
}
