// Package optimizer drives the periodic optimization cycle: expand the
// configured ranges, probe every candidate, rank the results and
// persist them.
package optimizer

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.ntppool.org/common/logger"
	"go.ntppool.org/common/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"go.ntppool.org/cdnopt/cloudflare"
	"go.ntppool.org/cdnopt/config"
	"go.ntppool.org/cdnopt/probe"
	"go.ntppool.org/cdnopt/ranges"
	"go.ntppool.org/cdnopt/ranking"
	"go.ntppool.org/cdnopt/sink"
)

type Optimizer struct {
	cfg       *config.Config
	prober    probe.Prober
	publisher sink.Publisher
	prom      prometheus.Registerer
	interval  time.Duration

	scheduler *probe.Scheduler
	sink      *sink.Sink
	m         *metrics

	state atomic.Int32
}

type Option func(*Optimizer)

// WithProber replaces the system ping prober.
func WithProber(p probe.Prober) Option {
	return func(o *Optimizer) { o.prober = p }
}

// WithPublisher replaces the Cloudflare client used for DNS updates.
func WithPublisher(p sink.Publisher) Option {
	return func(o *Optimizer) { o.publisher = p }
}

// WithRegisterer registers the optimizer metrics with prom instead of a
// private registry.
func WithRegisterer(prom prometheus.Registerer) Option {
	return func(o *Optimizer) { o.prom = prom }
}

// WithInterval overrides the configured pause between cycles.
func WithInterval(d time.Duration) Option {
	return func(o *Optimizer) { o.interval = d }
}

// Report summarizes one cycle. Best is the zero Entry when nothing was
// reachable.
type Report struct {
	ID         ulid.ULID
	Candidates int
	Reachable  int
	Best       ranking.Entry
	Published  bool
	Duration   time.Duration
}

// New builds an optimizer from a validated configuration.
func New(cfg *config.Config, opts ...Option) *Optimizer {
	o := &Optimizer{
		cfg:      cfg,
		interval: cfg.Optimization.Interval(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.prober == nil {
		o.prober = probe.NewExecProber(cfg.Optimization.Debug)
	}
	if o.publisher == nil && cfg.Cloudflare.UpdateDNS {
		o.publisher = cloudflare.New(cfg.Cloudflare)
	}
	if o.prom == nil {
		o.prom = prometheus.NewRegistry()
	}

	o.m = newMetrics(o.prom)

	o.scheduler = &probe.Scheduler{
		Prober:      o.prober,
		Concurrency: cfg.Optimization.PingThreads,
		Timeout:     cfg.Optimization.PingTimeout,
		Metrics:     probe.NewMetrics(o.prom),
	}
	o.sink = &sink.Sink{
		Path:      cfg.Optimization.OutputFile,
		TopK:      cfg.Optimization.TopIPsToSave,
		Publisher: o.publisher,
		UpdateDNS: cfg.Cloudflare.UpdateDNS,
	}

	o.setState(Idle)

	return o
}

// State returns the current run loop state.
func (o *Optimizer) State() State {
	return State(o.state.Load())
}

func (o *Optimizer) setState(s State) {
	o.state.Store(int32(s))
	o.m.setState(s)
}

// RunCycle runs one expand, probe, rank and persist pass. Finding no
// reachable address is not an error. A cancelled ctx abandons the cycle
// before anything is written.
func (o *Optimizer) RunCycle(ctx context.Context) (rpt Report, err error) {
	rpt.ID = ulid.Make()

	ctx, span := tracing.Start(ctx, "optimizer.RunCycle")
	defer span.End()
	span.SetAttributes(attribute.String("cycle", rpt.ID.String()))

	log := logger.FromContext(ctx).With("cycle", rpt.ID.String())
	ctx = logger.NewContext(ctx, log)

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "cycle panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("cycle panic: %v", r)
		}

		rpt.Duration = time.Since(start)
		o.m.duration.Observe(rpt.Duration.Seconds())

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.m.cycles.WithLabelValues("failed").Inc()
			return
		}
		o.m.cycles.WithLabelValues("success").Inc()
		o.m.lastSuccess.SetToCurrentTime()
	}()

	opt := o.cfg.Optimization

	addrs := ranges.Expand(ctx, o.cfg.CDN.CIDRList, opt.MaxAddresses)
	rpt.Candidates = len(addrs)
	o.m.candidates.Set(float64(len(addrs)))
	span.SetAttributes(attribute.Int("candidates", len(addrs)))

	log.InfoContext(ctx, "probing candidates",
		"count", len(addrs),
		"concurrency", opt.PingThreads,
		"timeout", opt.PingTimeout,
	)

	results := o.scheduler.Run(ctx, addrs)
	if err := ctx.Err(); err != nil {
		return rpt, fmt.Errorf("cycle abandoned: %w", err)
	}

	list := ranking.Rank(results)
	rpt.Reachable = list.Len()
	o.m.reachable.Set(float64(list.Len()))
	span.SetAttributes(attribute.Int("reachable", list.Len()))

	if best, ok := list.Best(); ok {
		rpt.Best = best
		o.m.bestLatency.Set(best.Latency.Seconds())
		log.InfoContext(ctx, "fastest address",
			"ip", best.Addr.String(),
			"latency_ms", best.Millis(),
			"reachable", list.Len(),
		)
	}

	out, err := o.sink.Persist(ctx, list)
	rpt.Published = out.Published
	if o.sink.UpdateDNS && out.Target.IsValid() {
		if out.Published {
			o.m.publishes.WithLabelValues("ok").Inc()
		} else {
			o.m.publishes.WithLabelValues("failed").Inc()
		}
	}
	if err != nil {
		return rpt, err
	}

	rpt.Duration = time.Since(start)
	log.InfoContext(ctx, "cycle complete",
		"written", out.Written,
		"published", out.Published,
		"duration", rpt.Duration.Round(time.Millisecond),
	)

	return rpt, nil
}

// Run repeats RunCycle until ctx is cancelled, pausing between cycles.
// Cycle failures are logged and never end the loop.
func (o *Optimizer) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)

	log.InfoContext(ctx, "optimizer started",
		"ranges", len(o.cfg.CDN.CIDRList),
		"interval", o.interval,
		"update_dns", o.sink.UpdateDNS,
	)

	for {
		o.setState(Running)
		rpt, err := o.RunCycle(ctx)

		if ctx.Err() != nil {
			o.setState(Idle)
			log.InfoContext(ctx, "optimizer stopped")
			return nil
		}

		if err != nil {
			o.setState(Failed)
			log.ErrorContext(ctx, "cycle failed", "cycle", rpt.ID.String(), "err", err)
		} else {
			o.setState(Success)
		}

		o.setState(Sleeping)
		log.InfoContext(ctx, "waiting for next cycle", "interval", o.interval)

		timer := time.NewTimer(o.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			o.setState(Idle)
			log.InfoContext(ctx, "optimizer stopped")
			return nil
		case <-timer.C:
		}

		o.setState(Idle)
	}
}
