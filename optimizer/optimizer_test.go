package optimizer

import (
	"context"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ntppool.org/cdnopt/cloudflare"
	"go.ntppool.org/cdnopt/config"
	tu "go.ntppool.org/cdnopt/testutil"
)

func testConfig(t *testing.T, updateDNS bool) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
cloudflare:
  api_token: token
  zone_id: zone
  record_id: record
  domain: cdn.example.com
cdn:
  cidr_list: ["10.0.0.0/30"]
optimization:
  ping_threads: 2
  ping_timeout: 200ms
  top_ips_to_save: 2
`))
	require.NoError(t, err)
	cfg.Cloudflare.UpdateDNS = updateDNS
	cfg.Optimization.OutputFile = filepath.Join(t.TempDir(), "fastest.txt")
	return cfg
}

func addr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}

func scenarioProber() *tu.FakeProber {
	return &tu.FakeProber{
		Latency: map[netip.Addr]time.Duration{
			addr("10.0.0.0"): 5 * time.Millisecond,
			addr("10.0.0.1"): 1 * time.Millisecond,
			addr("10.0.0.2"): 3 * time.Millisecond,
			addr("10.0.0.3"): 2 * time.Millisecond,
		},
	}
}

func readArtifact(t *testing.T, cfg *config.Config) string {
	t.Helper()
	b, err := os.ReadFile(cfg.Optimization.OutputFile)
	require.NoError(t, err)
	return string(b)
}

func TestRunCycle(t *testing.T) {
	ctx := tu.NewTestContext(t)
	cfg := testConfig(t, true)

	prober := scenarioProber()
	pub := &tu.FakePublisher{}
	reg := prometheus.NewRegistry()

	o := New(cfg, WithProber(prober), WithPublisher(pub), WithRegisterer(reg))

	rpt, err := o.RunCycle(ctx)
	require.NoError(t, err)

	assert.NotZero(t, rpt.ID)
	assert.Equal(t, 4, rpt.Candidates)
	assert.Equal(t, 4, rpt.Reachable)
	assert.Equal(t, addr("10.0.0.1"), rpt.Best.Addr)
	assert.Equal(t, time.Millisecond, rpt.Best.Latency)
	assert.True(t, rpt.Published)
	assert.Positive(t, rpt.Duration)

	assert.Equal(t, "10.0.0.1,1\n10.0.0.3,2\n", readArtifact(t, cfg))
	assert.Equal(t, []netip.Addr{addr("10.0.0.1")}, pub.Published())
	assert.LessOrEqual(t, prober.MaxInFlight(), 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(o.m.cycles.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.m.publishes.WithLabelValues("ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(o.m.reachable))
	assert.Equal(t, 0.001, testutil.ToFloat64(o.m.bestLatency))
}

func TestRunCycleDNSDisabled(t *testing.T) {
	ctx := tu.NewTestContext(t)
	cfg := testConfig(t, false)

	pub := &tu.FakePublisher{}
	o := New(cfg, WithProber(scenarioProber()), WithPublisher(pub))

	rpt, err := o.RunCycle(ctx)
	require.NoError(t, err)
	assert.False(t, rpt.Published)
	assert.Empty(t, pub.Published())
	assert.Equal(t, "10.0.0.1,1\n10.0.0.3,2\n", readArtifact(t, cfg))
}

func TestRunCycleNothingReachable(t *testing.T) {
	ctx := tu.NewTestContext(t)
	cfg := testConfig(t, true)

	// every probe outlasts the timeout
	prober := &tu.FakeProber{
		Latency: map[netip.Addr]time.Duration{},
		Delay:   map[netip.Addr]time.Duration{},
	}
	for _, a := range []string{"10.0.0.0", "10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		prober.Latency[addr(a)] = time.Millisecond
		prober.Delay[addr(a)] = time.Minute
	}

	require.NoError(t, os.WriteFile(cfg.Optimization.OutputFile, []byte("10.9.9.9,1\n"), 0o644))

	pub := &tu.FakePublisher{}
	o := New(cfg, WithProber(prober), WithPublisher(pub))

	rpt, err := o.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, rpt.Candidates)
	assert.Equal(t, 0, rpt.Reachable)
	assert.False(t, rpt.Best.Addr.IsValid())
	assert.False(t, rpt.Published)

	assert.Empty(t, readArtifact(t, cfg))
	assert.Empty(t, pub.Published())
	assert.Equal(t, 1.0, testutil.ToFloat64(o.m.cycles.WithLabelValues("success")))
}

func TestRunCyclePublishError(t *testing.T) {
	ctx := tu.NewTestContext(t)
	cfg := testConfig(t, true)

	pubErr := &cloudflare.APIError{
		StatusCode: 400,
		Errors:     []cloudflare.ResponseError{{Code: 9005, Message: "Content for A record is invalid."}},
	}
	pub := &tu.FakePublisher{Err: pubErr}
	o := New(cfg, WithProber(scenarioProber()), WithPublisher(pub))

	rpt, err := o.RunCycle(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, pubErr)
	assert.False(t, rpt.Published)

	// persisted before the update was attempted
	assert.Equal(t, "10.0.0.1,1\n10.0.0.3,2\n", readArtifact(t, cfg))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.m.cycles.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.m.publishes.WithLabelValues("failed")))
}

type panicPublisher struct{}

func (panicPublisher) Publish(context.Context, netip.Addr) error {
	panic("unexpected response")
}

func TestRunCyclePanic(t *testing.T) {
	ctx := tu.NewTestContext(t)
	cfg := testConfig(t, true)

	o := New(cfg, WithProber(scenarioProber()), WithPublisher(panicPublisher{}))

	_, err := o.RunCycle(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected response")
}

func TestRunCycleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(tu.NewTestContext(t))
	cancel()

	cfg := testConfig(t, true)
	pub := &tu.FakePublisher{}
	o := New(cfg, WithProber(scenarioProber()), WithPublisher(pub))

	_, err := o.RunCycle(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pub.Published())

	_, err = os.Stat(cfg.Optimization.OutputFile)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunContinuesAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(tu.NewTestContext(t))
	defer cancel()

	cfg := testConfig(t, true)
	pub := &tu.FakePublisher{Err: errors.New("api unavailable")}
	o := New(cfg,
		WithProber(scenarioProber()),
		WithPublisher(pub),
		WithInterval(10*time.Millisecond),
	)
	assert.Equal(t, Idle, o.State())

	done := make(chan error, 1)
	go func() {
		done <- o.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(pub.Published()) >= 3
	}, 5*time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, Idle, o.State())
	assert.GreaterOrEqual(t, testutil.ToFloat64(o.m.cycles.WithLabelValues("failed")), 3.0)
	assert.Equal(t, "10.0.0.1,1\n10.0.0.3,2\n", readArtifact(t, cfg))
}

func TestRunStopsWhileSleeping(t *testing.T) {
	ctx, cancel := context.WithCancel(tu.NewTestContext(t))
	defer cancel()

	cfg := testConfig(t, false)
	o := New(cfg, WithProber(scenarioProber()))

	done := make(chan error, 1)
	go func() {
		done <- o.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return o.State() == Sleeping
	}, 5*time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		Idle:      "idle",
		Running:   "running",
		Success:   "success",
		Failed:    "failed",
		Sleeping:  "sleeping",
		State(42): "unknown",
	} {
		assert.Equal(t, want, s.String())
	}
}
