package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// VERSION has the current software version (set in the build process)
var (
	VERSION    string
	buildTime  string
	gitVersion string
)

func init() {
	if len(gitVersion) > 0 {
		VERSION = VERSION + "/" + gitVersion
	}
	if len(VERSION) == 0 {
		VERSION = "dev-snapshot"
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "(devel)" && len(bi.Main.Version) > 0 {
			VERSION = bi.Main.Version
		}
	}
}

// Cmd prints the version; embed it in a kong command tree.
type Cmd struct{}

func (cmd *Cmd) Run() error {
	fmt.Printf("cdnopt %s\n", Version())
	return nil
}

// Version returns the version with build time and Go version.
func Version() string {
	extra := []string{}
	if len(buildTime) > 0 {
		extra = append(extra, buildTime)
	}
	extra = append(extra, runtime.Version())
	return fmt.Sprintf("%s (%s)", VERSION, strings.Join(extra, ", "))
}
