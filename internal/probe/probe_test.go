package probe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type funcProber func(ctx context.Context) error

func (f funcProber) Probe(ctx context.Context) error { return f(ctx) }

func TestWaitSucceedsAfterRetries(t *testing.T) {
	var attempts atomic.Int32
	p := funcProber(func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	if err := Wait(context.Background(), p, 5*time.Millisecond, time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestWaitTimesOutWithLastError(t *testing.T) {
	p := funcProber(func(context.Context) error {
		return errors.New("still down")
	})

	err := Wait(context.Background(), p, 5*time.Millisecond, 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "still down") {
		t.Fatalf("expected wrapped probe error, got %v", err)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := funcProber(func(context.Context) error {
		cancel()
		return errors.New("down")
	})

	if err := Wait(ctx, p, 5*time.Millisecond, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestHTTPProber(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTP(srv.URL, time.Second)
	if err := p.Probe(context.Background()); err == nil {
		t.Fatal("expected failure while unhealthy")
	}

	healthy.Store(true)
	if err := p.Probe(context.Background()); err != nil {
		t.Fatalf("expected success once healthy, got %v", err)
	}
}

func TestTCPProber(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	if err := NewTCP(listener.Addr().String()).Probe(context.Background()); err != nil {
		t.Fatalf("expected tcp probe success, got %v", err)
	}

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := closed.Addr().String()
	closed.Close()

	if err := NewTCP(addr).Probe(context.Background()); err == nil {
		t.Fatal("expected tcp probe failure against closed port")
	}
}
