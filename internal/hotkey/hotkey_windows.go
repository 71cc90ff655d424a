//go:build windows

package hotkey

import (
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/rs/zerolog"

	"flemme/internal/logging"
)

const (
	whKeyboardLL  = 13
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	wmQuit        = 0x0012
	llkhfInjected = 0x10
	vkShift       = 0x10
	vkControl     = 0x11
	vkMenu        = 0x12
	vkLWin        = 0x5B
	vkRWin        = 0x5C
)

type kbdllhookstruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

type winMsg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt_x    int32
	Pt_y    int32
}

var (
	user32                  = syscall.NewLazyDLL("user32.dll")
	kernel32                = syscall.NewLazyDLL("kernel32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procGetAsyncKeyState    = user32.NewProc("GetAsyncKeyState")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetCurrentThreadId  = kernel32.NewProc("GetCurrentThreadId")
)

type binding struct {
	key  Key
	spec Spec
}

// hookListener is a WH_KEYBOARD_LL hook. Matching key downs are swallowed
// and reported once (auto-repeat is suppressed); the matching key up is
// swallowed and reported as Release.
type hookListener struct {
	events chan Edge
	log    zerolog.Logger

	mu       sync.RWMutex
	next     Handle
	bindings map[Handle]binding

	// Touched only on the hook thread.
	down map[uint32]Key

	threadID  uintptr
	closeOnce sync.Once
	stopped   chan struct{}
}

// NewSystem installs the low-level keyboard hook.
func NewSystem() (Listener, error) {
	l := &hookListener{
		events:   make(chan Edge, 16),
		log:      logging.WithComponent("hotkey"),
		bindings: make(map[Handle]binding),
		down:     make(map[uint32]Key),
		stopped:  make(chan struct{}),
	}
	errCh := make(chan error, 1)
	go l.run(errCh)
	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
		return l, nil
	case <-time.After(2 * time.Second):
		return nil, fmt.Errorf("timeout installing low-level hook")
	}
}

func (l *hookListener) Register(key Key, spec string) (Handle, error) {
	s, err := Parse(spec)
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.bindings[l.next] = binding{key: key, spec: s}
	l.log.Debug().Str("spec", spec).Stringer("key", key).Uint32("mod", s.Mod).Uint32("vk", s.VK).Msg("registered")
	return l.next, nil
}

func (l *hookListener) Unregister(h Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.bindings[h]; !ok {
		return ErrUnknownHandle
	}
	delete(l.bindings, h)
	return nil
}

func (l *hookListener) Events() <-chan Edge { return l.events }

func (l *hookListener) Close() error {
	l.closeOnce.Do(func() {
		procPostThreadMessageW.Call(l.threadID, wmQuit, 0, 0)
		<-l.stopped
	})
	return nil
}

func keyDown(vk uintptr) bool {
	st, _, _ := procGetAsyncKeyState.Call(vk)
	return st&0x8000 != 0
}

func modsSatisfied(required uint32) bool {
	if required&ModCtrl != 0 && !keyDown(vkControl) {
		return false
	}
	if required&ModAlt != 0 && !keyDown(vkMenu) {
		return false
	}
	if required&ModShift != 0 && !keyDown(vkShift) {
		return false
	}
	if required&ModWin != 0 && !keyDown(vkLWin) && !keyDown(vkRWin) {
		return false
	}
	return true
}

func (l *hookListener) match(vk uint32) (Key, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, b := range l.bindings {
		if b.spec.VK == vk && modsSatisfied(b.spec.Mod) {
			return b.key, true
		}
	}
	return 0, false
}

func (l *hookListener) emit(e Edge) {
	select {
	case l.events <- e:
	default:
		l.log.Warn().Stringer("key", e.Key).Stringer("kind", e.Kind).Msg("event queue full; edge dropped")
	}
}

func (l *hookListener) run(errCh chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(l.stopped)

	tid, _, _ := procGetCurrentThreadId.Call()
	l.threadID = tid

	callback := syscall.NewCallback(func(nCode, wParam, lParam uintptr) uintptr {
		if int32(nCode) < 0 {
			ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
			return ret
		}
		msg := uint32(wParam)
		k := (*kbdllhookstruct)(unsafe.Pointer(lParam))
		if k.flags&llkhfInjected != 0 {
			ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
			return ret
		}

		switch msg {
		case wmKeyDown, wmSysKeyDown:
			if _, held := l.down[k.vkCode]; held {
				return 1
			}
			if key, ok := l.match(k.vkCode); ok {
				l.down[k.vkCode] = key
				l.log.Debug().Uint32("vk", k.vkCode).Stringer("key", key).Msg("press")
				l.emit(Edge{Key: key, Kind: Press})
				return 1
			}
		case wmKeyUp, wmSysKeyUp:
			if key, held := l.down[k.vkCode]; held {
				delete(l.down, k.vkCode)
				l.log.Debug().Uint32("vk", k.vkCode).Stringer("key", key).Msg("release")
				l.emit(Edge{Key: key, Kind: Release})
				return 1
			}
		}
		ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
		return ret
	})

	hook, _, _ := procSetWindowsHookExW.Call(uintptr(whKeyboardLL), callback, 0, 0)
	if hook == 0 {
		errCh <- fmt.Errorf("SetWindowsHookExW failed")
		return
	}
	l.log.Debug().Msg("low-level hook installed")
	errCh <- nil

	var m winMsg
	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(ret) == -1 {
			l.log.Error().Msg("GetMessageW error; exiting hook loop")
			break
		}
		if ret == 0 {
			break
		}
	}
	procUnhookWindowsHookEx.Call(hook)
	l.log.Debug().Msg("low-level hook uninstalled")
}
