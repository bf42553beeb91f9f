// Package probe measures the round-trip latency of candidate addresses.
//
// A Prober measures one address; the Scheduler runs a Prober over a
// whole candidate set with bounded concurrency.
package probe

import (
	"context"
	"net/netip"
	"time"

	"go.ntppool.org/common/logger"
)

// Prober measures the latency to one address. It returns false when the
// address did not answer in time or the answer could not be understood.
type Prober interface {
	Probe(ctx context.Context, addr netip.Addr, timeout time.Duration) (time.Duration, bool)
}

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandFunc builds the echo utility invocation for one probe.
type CommandFunc func(addr netip.Addr, timeout time.Duration) (name string, args []string)

// ExecProber probes addresses by running the host's ping utility once per
// probe and parsing the round-trip time it prints.
type ExecProber struct {
	Runner  Runner
	Command CommandFunc
	Decode  func([]byte) string

	// Debug logs the raw utility output of every probe at info level.
	Debug bool
}

// NewExecProber returns a prober using the system ping command.
func NewExecProber(debug bool) *ExecProber {
	return &ExecProber{
		Runner:  ExecRunner{},
		Command: pingCommand,
		Decode:  decodeOutput,
		Debug:   debug,
	}
}

type runResult struct {
	out []byte
	err error
}

func (p *ExecProber) Probe(ctx context.Context, addr netip.Addr, timeout time.Duration) (time.Duration, bool) {
	log := logger.FromContext(ctx)
	logfn := log.DebugContext
	if p.Debug {
		logfn = log.InfoContext
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name, args := p.Command(addr, timeout)

	done := make(chan runResult, 1)
	go func() {
		out, err := p.Runner.Run(ctx, name, args...)
		done <- runResult{out: out, err: err}
	}()

	var r runResult
	select {
	case <-ctx.Done():
		logfn(ctx, "probe timed out", "ip", addr.String(), "timeout", timeout)
		return 0, false
	case r = <-done:
	}

	decode := p.Decode
	if decode == nil {
		decode = func(b []byte) string { return string(b) }
	}
	output := decode(r.out)

	if r.err != nil {
		logfn(ctx, "probe failed", "ip", addr.String(), "err", r.err, "output", output)
		return 0, false
	}

	rtt, ok := ParseRTT(output)
	logfn(ctx, "probe", "ip", addr.String(), "ok", ok, "rtt", rtt, "output", output)

	return rtt, ok
}
