package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCallRunsInSubmissionOrder(t *testing.T) {
	l := Start([]int(nil), 16)
	defer l.Close(nil)

	for i := 0; i < 10; i++ {
		i := i
		if _, err := Call(context.Background(), l, func(s *[]int) struct{} {
			*s = append(*s, i)
			return struct{}{}
		}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	got, err := Call(context.Background(), l, func(s *[]int) []int { return append([]int(nil), *s...) })
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order mismatch at %d: got %d", i, v)
		}
	}
}

func TestCallOneInFlight(t *testing.T) {
	l := Start(0, 8)
	defer l.Close(nil)

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Call(context.Background(), l, func(n *int) int {
				cur := atomic.AddInt32(&active, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				*n++
				atomic.AddInt32(&active, -1)
				return *n
			})
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Fatalf("expected at most one command in flight, saw %d", peak)
	}
	n, _ := Call(context.Background(), l, func(n *int) int { return *n })
	if n != 8 {
		t.Fatalf("expected 8 commands applied, got %d", n)
	}
}

func TestCallAfterClose(t *testing.T) {
	l := Start(0, 0)
	finalized := false
	l.Close(func(*int) { finalized = true })
	if !finalized {
		t.Fatal("finalize not run")
	}
	_, err := Call(context.Background(), l, func(n *int) int { return *n })
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	// second close is a no-op
	l.Close(nil)
}

func TestCallContextCanceledKeepsCommandRunning(t *testing.T) {
	l := Start(0, 1)
	defer l.Close(nil)

	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := Call(ctx, l, func(n *int) int {
			<-release
			*n = 42
			return *n
		})
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)

	n, err := Call(context.Background(), l, func(n *int) int { return *n })
	if err != nil {
		t.Fatalf("follow-up call: %v", err)
	}
	if n != 42 {
		t.Fatalf("abandoned command should still complete, state=%d", n)
	}
}
