//go:build linux

package probe

import (
	"net/netip"
	"os/exec"
	"strconv"
	"time"
)

// iputils ping takes the reply wait time (-W) in whole seconds.
func pingCommand(addr netip.Addr, timeout time.Duration) (string, []string) {
	args := []string{"-n", "-c", "1", "-W", strconv.Itoa(waitSeconds(timeout))}
	if addr.Is6() && !addr.Is4In6() {
		args = append([]string{"-6"}, args...)
	}
	return "ping", append(args, addr.String())
}

func decodeOutput(b []byte) string {
	return string(b)
}

func hideWindow(*exec.Cmd) {}
