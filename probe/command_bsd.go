//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package probe

import (
	"net/netip"
	"os/exec"
	"strconv"
	"time"
)

func pingCommand(addr netip.Addr, timeout time.Duration) (string, []string) {
	if addr.Is6() && !addr.Is4In6() {
		// ping6 has no overall timeout flag; the probe context bounds it
		return "ping6", []string{"-n", "-c", "1", addr.String()}
	}
	return "ping", []string{"-n", "-c", "1", "-t", strconv.Itoa(waitSeconds(timeout)), addr.String()}
}

func decodeOutput(b []byte) string {
	return string(b)
}

func hideWindow(*exec.Cmd) {}
