// Package testutil has fakes shared by the package tests.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.ntppool.org/common/logger"
)

// NewTestContext returns a context carrying a debug level logger that
// writes through t.Log.
func NewTestContext(t *testing.T) context.Context {
	t.Helper()
	return logger.NewContext(context.Background(), NewTestLogger(t))
}

// NewTestLogger creates a logger that outputs to testing.T
func NewTestLogger(t *testing.T) *slog.Logger {
	handler := slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return slog.New(handler)
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(b []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(b), "\n"))
	return len(b), nil
}

// FakeProber answers each address after a configured delay. Addresses
// without a configured latency fail immediately. The probe honors its
// timeout the way a real probe does: if the delay is longer than the
// timeout, the probe fails when the timeout elapses.
type FakeProber struct {
	Latency map[netip.Addr]time.Duration

	// Delay overrides how long the probe takes; defaults to the latency.
	Delay map[netip.Addr]time.Duration

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	calls       atomic.Int64
}

func (f *FakeProber) Probe(ctx context.Context, addr netip.Addr, timeout time.Duration) (time.Duration, bool) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		max := f.maxInFlight.Load()
		if n <= max || f.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}

	latency, ok := f.Latency[addr]
	if !ok {
		return 0, false
	}
	delay := latency
	if d, ok := f.Delay[addr]; ok {
		delay = d
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case <-timer.C:
		return latency, true
	case <-deadline.C:
		return 0, false
	case <-ctx.Done():
		return 0, false
	}
}

// MaxInFlight is the highest number of concurrent probes observed.
func (f *FakeProber) MaxInFlight() int {
	return int(f.maxInFlight.Load())
}

// Calls is the number of probes run.
func (f *FakeProber) Calls() int {
	return int(f.calls.Load())
}

// FakeRunner returns canned ping output after an optional delay,
// ignoring context cancellation to model a process that doesn't exit
// when asked.
type FakeRunner struct {
	Output string
	Err    error
	Delay  time.Duration

	mu   sync.Mutex
	Args [][]string
}

func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.Args = append(f.Args, append([]string{name}, args...))
	f.mu.Unlock()

	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	return []byte(f.Output), f.Err
}

// FakePublisher records published addresses and returns Err.
type FakePublisher struct {
	Err error

	mu        sync.Mutex
	published []netip.Addr
}

func (f *FakePublisher) Publish(ctx context.Context, addr netip.Addr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, addr)
	return f.Err
}

// Published returns the addresses passed to Publish, in call order.
func (f *FakePublisher) Published() []netip.Addr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]netip.Addr(nil), f.published...)
}

// PingOutput formats a latency the way iputils ping prints it.
func PingOutput(addr netip.Addr, latency time.Duration) string {
	ms := float64(latency) / float64(time.Millisecond)
	return fmt.Sprintf("PING %[1]s (%[1]s) 56(84) bytes of data.\n"+
		"64 bytes from %[1]s: icmp_seq=1 ttl=57 time=%[2].1f ms\n\n"+
		"--- %[1]s ping statistics ---\n"+
		"1 packets transmitted, 1 received, 0%% packet loss, time 0ms\n"+
		"rtt min/avg/max/mdev = %[2].3f/%[2].3f/%[2].3f/0.000 ms\n",
		addr.String(), ms)
}
