package queue

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// silentBroker accepts TCP connections and never answers the AMQP
// handshake.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestNotifyDoesNotWaitForStalledBroker(t *testing.T) {
	failed := make(chan struct{}, 8)
	p := NewPublisher(silentBroker(t), zap.NewNop(),
		WithDialTimeout(100*time.Millisecond),
		WithFailureHook(func() { failed <- struct{}{} }),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Notify(ctx, sampleEvent()); err != nil && !errors.Is(err, ErrBufferFull) {
			t.Fatalf("notify: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("notify blocked for %v", elapsed)
	}

	select {
	case <-failed:
	case <-time.After(5 * time.Second):
		t.Fatal("undeliverable event was not reported")
	}

	start = time.Now()
	_ = p.Close()
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("close took %v", elapsed)
	}
	if err := p.Notify(context.Background(), sampleEvent()); !errors.Is(err, ErrPublisherClosed) {
		t.Fatalf("notify after close: %v", err)
	}
}

func TestNotifyDropsWhenBufferFull(t *testing.T) {
	p := NewPublisher(silentBroker(t), zap.NewNop(), WithBuffer(1), WithDialTimeout(time.Second))
	defer p.Close()

	full := 0
	for i := 0; i < 3; i++ {
		if err := p.Notify(context.Background(), sampleEvent()); errors.Is(err, ErrBufferFull) {
			full++
		} else if err != nil {
			t.Fatalf("notify: %v", err)
		}
	}
	if full == 0 {
		t.Fatal("expected at least one event to be dropped")
	}
}
