package handbrainclient

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

// scripted serves status codes in order, repeating the last one.
func scripted(t *testing.T, statuses ...int) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		n := int(calls.Add(1))
		status := statuses[len(statuses)-1]
		if n <= len(statuses) {
			status = statuses[n-1]
		}
		ctx.SetStatusCode(status)
		ctx.SetContentType("application/json")
		switch status {
		case fasthttp.StatusOK:
			ctx.SetBodyString(`{"status":"ok"}`)
		case fasthttp.StatusServiceUnavailable:
			ctx.SetBodyString(`{"code":"UNAVAILABLE","message":"store busy","retryable":true}`)
		default:
			ctx.SetBodyString(`{"code":"TURN","message":"not your turn","retryable":false}`)
		}
	}}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = srv.Shutdown()
		_ = ln.Close()
	})
	c := New("http://handbrain.test",
		WithRetry(4),
		WithDialer(func(string) (net.Conn, error) { return ln.Dial() }),
	)
	return c, &calls
}

func TestRetryableRepliesAreRetried(t *testing.T) {
	c, calls := scripted(t, fasthttp.StatusServiceUnavailable, fasthttp.StatusServiceUnavailable, fasthttp.StatusOK)
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("server saw %d requests; want 3", got)
	}
}

func TestRetriesStopAtRetryMax(t *testing.T) {
	c, calls := scripted(t, fasthttp.StatusServiceUnavailable)
	err := c.Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v; want *APIError", err)
	}
	if apiErr.Status != fasthttp.StatusServiceUnavailable || !apiErr.Retryable {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if got := calls.Load(); got != 4 {
		t.Fatalf("server saw %d requests; want 4", got)
	}
}

func TestNonRetryableErrorReturnsImmediately(t *testing.T) {
	c, calls := scripted(t, fasthttp.StatusConflict)
	err := c.Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "TURN" || apiErr.Message != "not your turn" {
		t.Fatalf("err = %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("server saw %d requests; want 1", got)
	}
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	c, calls := scripted(t, fasthttp.StatusServiceUnavailable)
	c.retryMax = 50
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err := c.Health(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v; want deadline exceeded", err)
	}
	if got := calls.Load(); got >= 50 {
		t.Fatalf("server saw %d requests; retries ignored the context", got)
	}
}

func TestBackOffGrowsAndIsBounded(t *testing.T) {
	b := newBackOff()
	var last time.Duration
	for i := 0; i < 12; i++ {
		d := b.NextBackOff()
		if d <= 0 || d > 2400*time.Millisecond {
			t.Fatalf("interval %d = %v out of range", i, d)
		}
		last = d
	}
	if last < 800*time.Millisecond {
		t.Fatalf("interval did not grow: %v", last)
	}
}
