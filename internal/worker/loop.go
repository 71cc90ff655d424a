// Package worker runs stateful stages on a dedicated goroutine.
//
// A Loop owns a value of type S and applies closures to it one at a time, in
// the order they were submitted. Callers never touch S directly; they use Call,
// which carries a private reply channel with every request.
package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Call once the loop has shut down.
var ErrClosed = errors.New("worker: loop closed")

// Loop is a single-consumer command queue bound to a state value.
type Loop[S any] struct {
	cmds      chan func(*S)
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Start launches the loop goroutine. queue is the number of commands that may
// wait before Call blocks on submission.
func Start[S any](state S, queue int) *Loop[S] {
	if queue < 0 {
		queue = 0
	}
	l := &Loop[S]{
		cmds: make(chan func(*S), queue),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.run(state)
	return l
}

func (l *Loop[S]) run(state S) {
	defer close(l.done)
	for {
		select {
		case cmd := <-l.cmds:
			cmd(&state)
		case <-l.quit:
			return
		}
	}
}

// Call submits fn and waits for its result. If ctx ends before the reply
// arrives, Call returns ctx.Err() but fn still runs to completion on the loop.
func Call[S, R any](ctx context.Context, l *Loop[S], fn func(*S) R) (R, error) {
	var zero R
	reply := make(chan R, 1)
	cmd := func(s *S) { reply <- fn(s) }

	select {
	case l.cmds <- cmd:
	case <-l.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-reply:
		return r, nil
	case <-l.done:
		select {
		case r := <-reply:
			return r, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close runs finalize on the loop (after every queued command) and stops it.
// It must not be called from inside a command.
func (l *Loop[S]) Close(finalize func(*S)) {
	l.closeOnce.Do(func() {
		_, _ = Call(context.Background(), l, func(s *S) struct{} {
			if finalize != nil {
				finalize(s)
			}
			return struct{}{}
		})
		close(l.quit)
		<-l.done
	})
}

// Done is closed once the loop goroutine has exited.
func (l *Loop[S]) Done() <-chan struct{} {
	return l.done
}
