package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"slices"
	"time"

	"github.com/miekg/dns"
	"go.ntppool.org/common/logger"

	"go.ntppool.org/cdnopt/cloudflare"
	"go.ntppool.org/cdnopt/config"
	"go.ntppool.org/cdnopt/sink"
)

type statusCmd struct {
	Resolver string        `default:"1.1.1.1:53" help:"DNS server used to look up the managed record"`
	Timeout  time.Duration `default:"5s" help:"Timeout for API and DNS queries"`
	NoAPI    bool          `name:"no-api" help:"Don't query the Cloudflare API"`

	apiBaseURL string
	out        io.Writer
}

func (cmd *statusCmd) Run(ctx context.Context, root *CdnoptCmd) error {
	log := logger.Setup()
	ctx = logger.NewContext(ctx, log)

	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	return cmd.status(ctx, cfg)
}

func (cmd *statusCmd) status(ctx context.Context, cfg *config.Config) error {
	out := cmd.out
	if out == nil {
		out = os.Stdout
	}

	ctx, cancel := context.WithTimeout(ctx, cmd.Timeout)
	defer cancel()

	path := cfg.Optimization.OutputFile
	entries, err := sink.ReadArtifact(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(out, "results: %s not written yet\n", path)
	case err != nil:
		return err
	default:
		modified := ""
		if fi, err := os.Stat(path); err == nil {
			modified = fi.ModTime().Format(time.RFC3339)
		}
		fmt.Fprintf(out, "results: %s (%d addresses, updated %s)\n", path, len(entries), modified)
		for _, e := range entries {
			fmt.Fprintf(out, "  %-39s %d ms\n", e.Addr, e.Millis())
		}
	}

	cf := cfg.Cloudflare
	if !cmd.NoAPI && cf.HasCredentials() {
		client := cloudflare.New(cf)
		client.BaseURL = cmd.apiBaseURL

		rec, err := client.GetRecord(ctx)
		switch {
		case cloudflare.IsAuthError(err):
			fmt.Fprintf(out, "record: api token rejected: %s\n", err)
		case err != nil:
			fmt.Fprintf(out, "record: %s\n", err)
		default:
			fmt.Fprintf(out, "record: %s %s %s (ttl %d, proxied %t)\n",
				rec.Name, rec.Type, rec.Content, rec.TTL, rec.Proxied)
		}
	}

	if len(cf.Domain) > 0 && len(cmd.Resolver) > 0 {
		addrs, err := lookup(ctx, cmd.Resolver, cf.Domain)
		if err != nil {
			fmt.Fprintf(out, "dns: %s\n", err)
			return nil
		}
		fmt.Fprintf(out, "dns: %s resolves to %v via %s\n", cf.Domain, addrs, cmd.Resolver)
		// proxied records resolve to Cloudflare's own edge addresses
		proxied := cf.Proxied == nil || *cf.Proxied
		if !proxied && len(entries) > 0 && !slices.Contains(addrs, entries[0].Addr) {
			fmt.Fprintf(out, "dns: fastest address %s is not published\n", entries[0].Addr)
		}
	}

	return nil
}

// lookup queries server for the A and AAAA records of name.
func lookup(ctx context.Context, server, name string) ([]netip.Addr, error) {
	c := &dns.Client{}

	addrs := []netip.Addr{}
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(name), qtype)
		m.RecursionDesired = true

		r, _, err := c.ExchangeContext(ctx, m, server)
		if err != nil {
			return nil, fmt.Errorf("querying %s: %w", server, err)
		}
		if r.Rcode != dns.RcodeSuccess {
			return nil, fmt.Errorf("querying %s: %s", server, dns.RcodeToString[r.Rcode])
		}

		for _, rr := range r.Answer {
			var ip netip.Addr
			switch rr := rr.(type) {
			case *dns.A:
				ip, _ = netip.AddrFromSlice(rr.A.To4())
			case *dns.AAAA:
				ip, _ = netip.AddrFromSlice(rr.AAAA)
			default:
				continue
			}
			if ip.IsValid() {
				addrs = append(addrs, ip)
			}
		}
	}

	return addrs, nil
}
