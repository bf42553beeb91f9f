package main

import (
	basecmd "go.ntppool.org/cdnopt/cmd"
	"go.ntppool.org/cdnopt/optimizer/cmd"
)

func main() {
	basecmd.Run(&cmd.CdnoptCmd{}, "cdnopt", "Finds the fastest CDN edge addresses and keeps a DNS record pointed at the best one")
}
