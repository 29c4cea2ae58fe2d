package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/railbot/internal/rail"
)

func TestDoBoundsConcurrency(t *testing.T) {
	p := New(2, 0)
	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Do(context.Background(), rail.SRT, func() error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("Do() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestDoReturnsError(t *testing.T) {
	p := New(1, 0)
	want := errors.New("boom")
	if err := p.Do(context.Background(), rail.KTX, func() error { return want }); !errors.Is(err, want) {
		t.Errorf("Do() error = %v, want %v", err, want)
	}
}

func TestDoHonoursCancel(t *testing.T) {
	p := New(1, 0)
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		errc <- p.Do(ctx, rail.SRT, func() error {
			<-release
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do() did not return after cancel")
	}

	close(release)
	if err := p.Do(context.Background(), rail.SRT, func() error { return nil }); err != nil {
		t.Errorf("Do() after background call finished error = %v", err)
	}
}

func TestRun(t *testing.T) {
	p := New(1, 100)
	got, err := Run(context.Background(), p, rail.SRT, func() (int, error) { return 42, nil })
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Run() = %d, want 42", got)
	}
}
