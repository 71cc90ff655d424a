package hotkey

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Spec
	}{
		{"ctrl+alt+r", Spec{ModCtrl | ModAlt, 'R'}},
		{"Ctrl + Shift + F1", Spec{ModCtrl | ModShift, 0x70}},
		{"esc", Spec{0, 0x1B}},
		{"Escape", Spec{0, 0x1B}},
		{"alt+q", Spec{ModAlt, 'Q'}},
		{"win+space", Spec{ModWin, 0x20}},
		{"f24", Spec{0, 0x87}},
		{"numpad5", Spec{0, 0x65}},
		{"kp0", Spec{0, 0x60}},
		{"ctrl+7", Spec{ModCtrl, '7'}},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("%q: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("%q: got %+v want %+v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "ctrl+", "hyper+r", "f25", "ctrl+banana"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func collect(t *testing.T, c *Console, n int) []Edge {
	t.Helper()
	var out []Edge
	timeout := time.After(time.Second)
	for len(out) < n {
		select {
		case e, ok := <-c.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timeout:
			t.Fatalf("timed out after %d edges", len(out))
		}
	}
	return out
}

func TestConsoleEdges(t *testing.T) {
	pr, pw := io.Pipe()
	c := NewConsole(pr)
	defer c.Close()
	if _, err := c.Register(Trigger, "ctrl+alt+r"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Register(Cancel, "esc"); err != nil {
		t.Fatal(err)
	}
	go func() {
		_, _ = io.WriteString(pw, "press\nrelease\n\nbogus\ntoggle\ncancel\n")
		_ = pw.Close()
	}()

	got := collect(t, c, 6)
	want := []Edge{
		{Trigger, Press}, {Trigger, Release},
		{Trigger, Press}, {Trigger, Release},
		{Cancel, Press}, {Cancel, Release},
	}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("edge %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestConsoleUnregister(t *testing.T) {
	c := NewConsole(strings.NewReader(""))
	defer c.Close()
	h, err := c.Register(Cancel, "esc")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Unregister(h); err != nil {
		t.Fatal(err)
	}
	if err := c.Unregister(h); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle, got %v", err)
	}
	if _, err := c.Register(Trigger, "nonsense+key"); err == nil {
		t.Fatal("invalid spec accepted")
	}
}
