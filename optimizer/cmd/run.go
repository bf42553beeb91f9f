package cmd

import (
	"context"
	"fmt"

	"go.ntppool.org/common/logger"
	"go.ntppool.org/common/metricsserver"

	"go.ntppool.org/cdnopt/optimizer"
	"go.ntppool.org/cdnopt/service"
)

type runCmd struct {
	ServiceName string `name:"service-name" default:"cdnopt" help:"Name used when started by the service manager"`
}

func (cmd *runCmd) Run(ctx context.Context, root *CdnoptCmd) error {
	return service.Run(ctx, cmd.ServiceName, func(ctx context.Context) error {
		return run(ctx, root, true)
	})
}

type onceCmd struct{}

func (cmd *onceCmd) Run(ctx context.Context, root *CdnoptCmd) error {
	return run(ctx, root, false)
}

func run(ctx context.Context, root *CdnoptCmd, continuous bool) error {
	log := logger.Setup()
	ctx = logger.NewContext(ctx, log)

	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}

	tpShutdown, err := InitTracing(ctx)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err := tpShutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("trace provider shutdown", "err", err)
		}
	}()

	metricssrv := metricsserver.New()
	if cfg.Metrics.Port > 0 {
		go func() {
			if err := metricssrv.ListenAndServe(ctx, cfg.Metrics.Port); err != nil {
				log.Error("metrics server", "err", err)
			}
		}()
	}

	opt := optimizer.New(cfg, optimizer.WithRegisterer(metricssrv.Registry()))

	if continuous {
		return opt.Run(ctx)
	}

	rpt, err := opt.RunCycle(ctx)
	if err != nil {
		return err
	}

	if !rpt.Best.Addr.IsValid() {
		fmt.Printf("no reachable addresses among %d candidates\n", rpt.Candidates)
		return nil
	}
	fmt.Printf("fastest: %s (%d ms), %d of %d reachable, results in %s\n",
		rpt.Best.Addr, rpt.Best.Millis(), rpt.Reachable, rpt.Candidates, cfg.Optimization.OutputFile)
	if rpt.Published {
		fmt.Printf("%s now points at %s\n", cfg.Cloudflare.Domain, rpt.Best.Addr)
	}

	return nil
}
