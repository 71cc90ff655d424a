package hotkey

import (
	"bufio"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"flemme/internal/logging"
)

// Console reads edges from text lines: "press", "release", "cancel", or
// "toggle" (press then release). It stands in for global hotkeys on
// platforms without a system hook.
type Console struct {
	events chan Edge
	log    zerolog.Logger

	mu    sync.Mutex
	next  Handle
	specs map[Handle]Key
	keys  map[Key]int

	once sync.Once
	done chan struct{}
}

// NewConsole starts reading r until EOF or Close.
func NewConsole(r io.Reader) *Console {
	c := &Console{
		events: make(chan Edge, 16),
		log:    logging.WithComponent("hotkey"),
		specs:  make(map[Handle]Key),
		keys:   make(map[Key]int),
		done:   make(chan struct{}),
	}
	go c.read(r)
	return c
}

// Register implements Listener. The spec is validated but console input
// does not depend on it.
func (c *Console) Register(key Key, spec string) (Handle, error) {
	if _, err := Parse(spec); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.specs[c.next] = key
	c.keys[key]++
	return c.next, nil
}

// Unregister implements Listener.
func (c *Console) Unregister(h Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.specs[h]
	if !ok {
		return ErrUnknownHandle
	}
	delete(c.specs, h)
	c.keys[key]--
	return nil
}

// Events implements Listener.
func (c *Console) Events() <-chan Edge { return c.events }

// Close stops delivering edges.
func (c *Console) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Console) registered(k Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys[k] > 0
}

func (c *Console) read(r io.Reader) {
	defer close(c.events)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var edges []Edge
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "":
			continue
		case "press", "p":
			edges = []Edge{{Trigger, Press}}
		case "release", "r":
			edges = []Edge{{Trigger, Release}}
		case "toggle", "t":
			edges = []Edge{{Trigger, Press}, {Trigger, Release}}
		case "cancel", "c":
			edges = []Edge{{Cancel, Press}, {Cancel, Release}}
		default:
			c.log.Warn().Str("input", sc.Text()).Msg("unknown command (press, release, toggle, cancel)")
			continue
		}
		for _, e := range edges {
			if !c.registered(e.Key) {
				continue
			}
			select {
			case c.events <- e:
			case <-c.done:
				return
			}
		}
	}
}
