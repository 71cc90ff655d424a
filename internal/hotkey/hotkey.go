// Package hotkey turns global key combinations into press and release edges.
package hotkey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsupported is returned where no system hook exists.
var ErrUnsupported = errors.New("hotkey: global hotkeys not supported on this platform")

// ErrUnknownHandle is returned by Unregister for handles it did not issue.
var ErrUnknownHandle = errors.New("hotkey: unknown handle")

// Key identifies which binding fired.
type Key int

const (
	Trigger Key = iota + 1
	Cancel
)

func (k Key) String() string {
	switch k {
	case Trigger:
		return "trigger"
	case Cancel:
		return "cancel"
	default:
		return "key(" + strconv.Itoa(int(k)) + ")"
	}
}

// Kind is the edge direction.
type Kind int

const (
	Press Kind = iota + 1
	Release
)

func (k Kind) String() string {
	if k == Release {
		return "release"
	}
	return "press"
}

// Edge is one key transition.
type Edge struct {
	Key  Key
	Kind Kind
}

// Handle identifies a registration.
type Handle int

// Listener registers bindings and delivers their edges.
type Listener interface {
	Register(key Key, spec string) (Handle, error)
	Unregister(h Handle) error
	Events() <-chan Edge
	Close() error
}

// Modifier masks, matching the Windows MOD_* values.
const (
	ModAlt   uint32 = 0x0001
	ModCtrl  uint32 = 0x0002
	ModShift uint32 = 0x0004
	ModWin   uint32 = 0x0008
)

// Spec is a parsed combination: modifier mask and virtual-key code.
type Spec struct {
	Mod uint32
	VK  uint32
}

const (
	vkNumpad0  = 0x60
	vkAdd      = 0x6B
	vkSubtract = 0x6D
)

var namedKeys = map[string]uint32{
	"esc":        0x1B,
	"escape":     0x1B,
	"space":      0x20,
	"enter":      0x0D,
	"return":     0x0D,
	"tab":        0x09,
	"backspace":  0x08,
	"insert":     0x2D,
	"delete":     0x2E,
	"home":       0x24,
	"end":        0x23,
	"pageup":     0x21,
	"pagedown":   0x22,
	"left":       0x25,
	"up":         0x26,
	"right":      0x27,
	"down":       0x28,
	"add":        vkAdd,
	"plus":       vkAdd,
	"kpadd":      vkAdd,
	"subtract":   vkSubtract,
	"minus":      vkSubtract,
	"kpsubtract": vkSubtract,
}

// Parse accepts strings like "alt+q", "ctrl+shift+F1", "esc".
func Parse(s string) (Spec, error) {
	if strings.TrimSpace(s) == "" {
		return Spec{}, errors.New("hotkey: empty key")
	}
	parts := strings.Split(s, "+")
	for i := range parts {
		parts[i] = strings.TrimSpace(strings.ToLower(parts[i]))
	}
	keyToken := parts[len(parts)-1]
	var mod uint32
	for _, p := range parts[:len(parts)-1] {
		switch p {
		case "alt", "menu", "option":
			mod |= ModAlt
		case "ctrl", "control":
			mod |= ModCtrl
		case "shift":
			mod |= ModShift
		case "win", "meta", "super", "cmd":
			mod |= ModWin
		default:
			return Spec{}, fmt.Errorf("hotkey: unknown modifier %q in %q", p, s)
		}
	}

	if len(keyToken) == 1 {
		ch := keyToken[0]
		switch {
		case ch >= 'a' && ch <= 'z':
			return Spec{mod, uint32(ch - 'a' + 'A')}, nil
		case ch >= '0' && ch <= '9':
			return Spec{mod, uint32(ch)}, nil
		}
	}
	if v, ok := namedKeys[keyToken]; ok {
		return Spec{mod, v}, nil
	}
	if n, ok := strings.CutPrefix(keyToken, "f"); ok {
		if i, err := strconv.Atoi(n); err == nil && i >= 1 && i <= 24 {
			return Spec{mod, 0x70 + uint32(i-1)}, nil
		}
	}
	for _, prefix := range []string{"numpad", "num", "kp"} {
		if n, ok := strings.CutPrefix(keyToken, prefix); ok && len(n) == 1 && n[0] >= '0' && n[0] <= '9' {
			return Spec{mod, vkNumpad0 + uint32(n[0]-'0')}, nil
		}
	}
	return Spec{}, fmt.Errorf("hotkey: unsupported key token: %s", s)
}
