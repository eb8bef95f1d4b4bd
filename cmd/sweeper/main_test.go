package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingExpirer struct {
	calls atomic.Int32
	ttl   atomic.Int64
	err   error
}

func (c *countingExpirer) ExpireStaleCodes(_ context.Context, ttl time.Duration) (int, error) {
	c.calls.Add(1)
	c.ttl.Store(int64(ttl))
	return 2, c.err
}

func TestRun_SweepsAtStartAndOnEveryTick(t *testing.T) {
	svc := &countingExpirer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx, svc, 10*time.Minute, 10*time.Millisecond, zap.NewNop())
	}()

	assert.Eventually(t, func() bool { return svc.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not stop after cancel")
	}
	assert.Equal(t, int64(10*time.Minute), svc.ttl.Load())
}

func TestRun_SweepsOnceWhenAlreadyCancelled(t *testing.T) {
	svc := &countingExpirer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run(ctx, svc, time.Minute, time.Hour, zap.NewNop())

	assert.Equal(t, int32(1), svc.calls.Load())
}

func TestSweep_LogsFailure(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	svc := &countingExpirer{err: errors.New("scan failed")}

	sweep(context.Background(), svc, time.Minute, zap.New(core))

	entries := logs.FilterMessage("stale code sweep failed").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, int64(2), entries[0].ContextMap()["removed"])
	}
}

func TestServeMetrics_ServesUntilCancelled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("youme_couple_codes_expired_total 2\n"))
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, done, err := serveMetrics(ctx, "127.0.0.1:0", handler, zap.NewNop())
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "codes_expired")

	resp, err = http.Get("http://" + addr.String() + "/other")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("metrics server did not shut down")
	}
}

func TestServeMetrics_AddressInUse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, _, err := serveMetrics(ctx, "127.0.0.1:0", http.NotFoundHandler(), zap.NewNop())
	require.NoError(t, err)

	_, _, err = serveMetrics(ctx, addr.String(), http.NotFoundHandler(), zap.NewNop())
	assert.Error(t, err)
}
