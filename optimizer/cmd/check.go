package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"go.ntppool.org/common/logger"
	"go.ntppool.org/common/tracing"

	"go.ntppool.org/cdnopt/probe"
	"go.ntppool.org/cdnopt/ranges"
	"go.ntppool.org/cdnopt/ranking"
)

const checkMaxAddresses = 4096

type checkCmd struct {
	Timeout     time.Duration `default:"2s" help:"Probe timeout"`
	Concurrency int           `short:"n" default:"16" help:"Probes in flight"`
	IP          []string      `arg:"" help:"IP addresses or CIDR ranges to check"`

	prober probe.Prober
	out    io.Writer
}

func (cmd *checkCmd) Run(ctx context.Context, root *CdnoptCmd) error {
	log := logger.Setup()
	ctx = logger.NewContext(ctx, log)

	ctx, span := tracing.Start(ctx, "check")
	defer span.End()

	prober := cmd.prober
	if prober == nil {
		prober = probe.NewExecProber(root.Debug)
	}
	out := cmd.out
	if out == nil {
		out = os.Stdout
	}

	addrs := ranges.Expand(ctx, cmd.IP, checkMaxAddresses)
	if len(addrs) == 0 {
		return fmt.Errorf("no valid addresses in %v", cmd.IP)
	}

	sched := &probe.Scheduler{
		Prober:      prober,
		Concurrency: cmd.Concurrency,
		Timeout:     cmd.Timeout,
	}
	list := ranking.Rank(sched.Run(ctx, addrs))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, e := range list.Entries() {
		fmt.Fprintf(tw, "%s\t%d ms\n", e.Addr, e.Millis())
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed := len(addrs) - list.Len(); failed > 0 {
		fmt.Fprintf(out, "%d of %d addresses did not answer\n", failed, len(addrs))
	}

	return nil
}
