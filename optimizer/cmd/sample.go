package cmd

import (
	"fmt"
	"io"
	"os"

	"go.ntppool.org/cdnopt/config"
)

type sampleConfigCmd struct {
	out io.Writer
}

func (cmd *sampleConfigCmd) Run() error {
	out := cmd.out
	if out == nil {
		out = os.Stdout
	}
	_, err := fmt.Fprint(out, config.Sample)
	return err
}
