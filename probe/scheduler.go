package probe

import (
	"context"
	"net/netip"
	"time"

	"golang.org/x/sync/errgroup"

	"go.ntppool.org/common/logger"
)

// Result is the outcome of probing one address. Latency is only
// meaningful when OK is set.
type Result struct {
	Addr    netip.Addr
	Latency time.Duration
	OK      bool
}

// Scheduler probes a candidate set with at most Concurrency probes in
// flight. Individual probe failures never affect other probes.
type Scheduler struct {
	Prober      Prober
	Concurrency int
	Timeout     time.Duration
	Metrics     *Metrics
}

// Run probes every address and returns one Result per address once all
// probes have completed or timed out. Results are in input order; the
// order probes finished in is not observable.
//
// When ctx is cancelled no further probes are started and the remaining
// addresses are reported as failed.
func (s *Scheduler) Run(ctx context.Context, addrs []netip.Addr) []Result {
	log := logger.FromContext(ctx)

	results := make([]Result, len(addrs))
	if len(addrs) == 0 {
		return results
	}

	limit := s.Concurrency
	if limit < 1 {
		limit = 1
	}

	// A plain Group (not WithContext): probes don't return errors, and a
	// failed probe must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(limit)

	started := time.Now()

	for i, addr := range addrs {
		results[i].Addr = addr

		if ctx.Err() != nil {
			continue
		}

		// Go blocks until a slot is free
		g.Go(func() error {
			s.Metrics.inflight(1)
			defer s.Metrics.inflight(-1)

			latency, ok := s.Prober.Probe(ctx, addr, s.Timeout)

			results[i].Latency = latency
			results[i].OK = ok
			s.Metrics.observe(ok)
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.WarnContext(ctx, "probing interrupted", "err", err)
	}

	log.DebugContext(ctx, "probing done",
		"addresses", len(addrs),
		"concurrency", limit,
		"duration", time.Since(started).Round(time.Millisecond),
	)

	return results
}
