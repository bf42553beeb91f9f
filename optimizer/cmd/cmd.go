package cmd

import (
	"context"

	"github.com/alecthomas/kong"

	"go.ntppool.org/cdnopt/config"
	"go.ntppool.org/cdnopt/version"
)

type CdnoptCmd struct {
	ConfigFile string `name:"config" short:"c" default:"config.yaml" env:"CDNOPT_CONFIG" type:"path" help:"Configuration file"`
	Debug      bool   `env:"CDNOPT_DEBUG" help:"Log the outcome of every probe"`

	Start        runCmd          `cmd:"" name:"run" default:"withargs" help:"Run optimization cycles until stopped"`
	Once         onceCmd         `cmd:"" help:"Run a single optimization cycle"`
	Check        checkCmd        `cmd:"" help:"Probe addresses or ranges and print their latency"`
	Status       statusCmd       `cmd:"" help:"Show the last results and the managed DNS record"`
	SampleConfig sampleConfigCmd `cmd:"" name:"sample-config" help:"Print an example configuration file"`
	Install      installCmd      `cmd:"" help:"Install as a Windows service"`
	Uninstall    uninstallCmd    `cmd:"" help:"Remove the Windows service"`
	Version      version.Cmd     `cmd:"" help:"Print version and build information"`
}

// AfterApply makes the root command available to the subcommands.
func (c *CdnoptCmd) AfterApply(kctx *kong.Context, ctx context.Context) error {
	kctx.Bind(c)
	return nil
}

// LoadConfig reads the configuration file named on the command line.
func (c *CdnoptCmd) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.ConfigFile)
	if err != nil {
		return nil, err
	}
	if c.Debug {
		cfg.Optimization.Debug = true
	}
	return cfg, nil
}
