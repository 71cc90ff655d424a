//go:build windows || linux

package deliver

import (
	"runtime"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

type keybdKeys struct {
	once sync.Once
	kb   keybd_event.KeyBonding
	err  error
}

func newKeys() Keys { return &keybdKeys{} }

// Paste sends Ctrl+V.
func (k *keybdKeys) Paste() error {
	k.once.Do(func() {
		k.kb, k.err = keybd_event.NewKeyBonding()
		if k.err == nil && runtime.GOOS == "linux" {
			// uinput needs time to register the virtual device.
			time.Sleep(2 * time.Second)
		}
	})
	if k.err != nil {
		return k.err
	}
	k.kb.Clear()
	k.kb.HasCTRL(true)
	k.kb.SetKeys(keybd_event.VK_V)
	return k.kb.Launching()
}
