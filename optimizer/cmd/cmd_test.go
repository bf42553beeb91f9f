package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ntppool.org/cdnopt/config"
	"go.ntppool.org/cdnopt/ranking"
	"go.ntppool.org/cdnopt/sink"
	"go.ntppool.org/cdnopt/testutil"
)

func newParser(t *testing.T, cli *CdnoptCmd) *kong.Kong {
	t.Helper()
	parser, err := kong.New(cli,
		kong.Name("cdnopt"),
		kong.BindTo(context.Background(), (*context.Context)(nil)),
		kong.Exit(func(int) { t.Fatal("unexpected exit") }),
	)
	require.NoError(t, err)
	return parser
}

func TestParseCommands(t *testing.T) {
	tests := []struct {
		args    []string
		command string
	}{
		{[]string{}, "run"},
		{[]string{"run"}, "run"},
		{[]string{"once"}, "once"},
		{[]string{"check", "104.16.0.1", "104.16.1.0/30"}, "check <ip>"},
		{[]string{"status", "--no-api"}, "status"},
		{[]string{"sample-config"}, "sample-config"},
		{[]string{"install", "--name", "cdnopt-test"}, "install"},
		{[]string{"uninstall"}, "uninstall"},
		{[]string{"version"}, "version"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.args), func(t *testing.T) {
			cli := &CdnoptCmd{}
			kctx, err := newParser(t, cli).Parse(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.command, kctx.Command())
		})
	}
}

func TestParseFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		// t.Setenv restores the previous values when the test ends
		for _, env := range []string{"CDNOPT_CONFIG", "CDNOPT_DEBUG"} {
			t.Setenv(env, "")
			os.Unsetenv(env)
		}
		cli := &CdnoptCmd{}
		_, err := newParser(t, cli).Parse([]string{"check", "104.16.0.1"})
		require.NoError(t, err)

		assert.Equal(t, config.DefaultFile, filepath.Base(cli.ConfigFile))
		assert.True(t, filepath.IsAbs(cli.ConfigFile))
		assert.False(t, cli.Debug)
		assert.Equal(t, 2*time.Second, cli.Check.Timeout)
		assert.Equal(t, []string{"104.16.0.1"}, cli.Check.IP)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("CDNOPT_CONFIG", "/etc/cdnopt/config.yaml")
		t.Setenv("CDNOPT_DEBUG", "true")
		cli := &CdnoptCmd{}
		_, err := newParser(t, cli).Parse([]string{"once"})
		require.NoError(t, err)

		assert.Equal(t, "/etc/cdnopt/config.yaml", cli.ConfigFile)
		assert.True(t, cli.Debug)
	})
}

func writeConfig(t *testing.T, body string) *CdnoptCmd {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return &CdnoptCmd{ConfigFile: path}
}

func TestLoadConfig(t *testing.T) {
	root := writeConfig(t, "cdn:\n  cidr_list: [\"104.16.0.0/30\"]\n")

	cfg, err := root.LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Optimization.Debug)

	root.Debug = true
	cfg, err = root.LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Optimization.Debug)

	root.ConfigFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = root.LoadConfig()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCheck(t *testing.T) {
	ctx := testutil.NewTestContext(t)

	prober := &testutil.FakeProber{
		Latency: map[netip.Addr]time.Duration{
			netip.MustParseAddr("104.16.1.0"): 9 * time.Millisecond,
			netip.MustParseAddr("104.16.1.2"): 4 * time.Millisecond,
		},
	}
	out := &bytes.Buffer{}
	cmd := &checkCmd{
		Timeout:     time.Second,
		Concurrency: 2,
		IP:          []string{"104.16.1.0/30"},
		prober:      prober,
		out:         out,
	}
	require.NoError(t, cmd.Run(ctx, &CdnoptCmd{}))

	assert.Equal(t,
		"104.16.1.2  4 ms\n"+
			"104.16.1.0  9 ms\n"+
			"2 of 4 addresses did not answer\n",
		out.String())
	assert.Equal(t, 4, prober.Calls())
}

func TestCheckNoAddresses(t *testing.T) {
	ctx := testutil.NewTestContext(t)
	cmd := &checkCmd{IP: []string{"not-an-address"}, prober: &testutil.FakeProber{}, out: &bytes.Buffer{}}
	assert.Error(t, cmd.Run(ctx, &CdnoptCmd{}))
}

func TestSampleConfig(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, (&sampleConfigCmd{out: out}).Run())

	cfg, err := config.Parse(out.Bytes())
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.CDN.CIDRList)
}

func startDNSServer(t *testing.T, answers map[uint16]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			q := r.Question[0]
			if rdata, ok := answers[q.Qtype]; ok {
				rr, err := dns.NewRR(fmt.Sprintf("%s 300 IN %s %s", q.Name, dns.TypeToString[q.Qtype], rdata))
				if err == nil {
					m.Answer = append(m.Answer, rr)
				}
			}
			w.WriteMsg(m)
		}),
	}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestLookup(t *testing.T) {
	ctx := testutil.NewTestContext(t)
	server := startDNSServer(t, map[uint16]string{
		dns.TypeA:    "104.16.1.2",
		dns.TypeAAAA: "2606:4700::6810:102",
	})

	addrs, err := lookup(ctx, server, "cdn.example.com")
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{
		netip.MustParseAddr("104.16.1.2"),
		netip.MustParseAddr("2606:4700::6810:102"),
	}, addrs)
}

func TestStatus(t *testing.T) {
	ctx := testutil.NewTestContext(t)
	t.Setenv(config.TokenEnv, "")

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/zones/zone123/dns_records/rec456", r.URL.Path)
		w.Write([]byte(`{"success":true,"result":{"id":"rec456","type":"A","name":"cdn.example.com","content":"104.16.1.2","ttl":1,"proxied":false}}`))
	}))
	defer api.Close()

	resolver := startDNSServer(t, map[uint16]string{dns.TypeA: "104.16.1.9"})

	output := filepath.Join(t.TempDir(), "fastest.txt")
	root := writeConfig(t, fmt.Sprintf(`
cloudflare:
  api_token: token
  zone_id: zone123
  record_id: rec456
  domain: cdn.example.com
  proxied: false
cdn:
  cidr_list: ["104.16.1.0/24"]
optimization:
  output_file: %q
`, output))
	cfg, err := root.LoadConfig()
	require.NoError(t, err)

	require.NoError(t, sink.WriteArtifact(output, []ranking.Entry{
		{Addr: netip.MustParseAddr("104.16.1.2"), Latency: 4 * time.Millisecond},
		{Addr: netip.MustParseAddr("104.16.1.0"), Latency: 9 * time.Millisecond},
	}))

	out := &bytes.Buffer{}
	cmd := &statusCmd{
		Resolver:   resolver,
		Timeout:    5 * time.Second,
		apiBaseURL: api.URL,
		out:        out,
	}
	require.NoError(t, cmd.status(ctx, cfg))

	s := out.String()
	assert.Contains(t, s, "(2 addresses, updated ")
	assert.Contains(t, s, "104.16.1.2")
	assert.Contains(t, s, "record: cdn.example.com A 104.16.1.2 (ttl 1, proxied false)")
	assert.Contains(t, s, "dns: cdn.example.com resolves to [104.16.1.9] via "+resolver)
	assert.Contains(t, s, "dns: fastest address 104.16.1.2 is not published")
}

func TestStatusNoResults(t *testing.T) {
	ctx := testutil.NewTestContext(t)

	output := filepath.Join(t.TempDir(), "fastest.txt")
	cfg := &config.Config{}
	cfg.Optimization.OutputFile = output

	out := &bytes.Buffer{}
	cmd := &statusCmd{Timeout: time.Second, NoAPI: true, out: out}
	require.NoError(t, cmd.status(ctx, cfg))
	assert.Equal(t, "results: "+output+" not written yet\n", out.String())
}
