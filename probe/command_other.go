//go:build !linux && !windows && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package probe

import (
	"net/netip"
	"os/exec"
	"time"
)

func pingCommand(addr netip.Addr, _ time.Duration) (string, []string) {
	return "ping", []string{"-c", "1", addr.String()}
}

func decodeOutput(b []byte) string {
	return string(b)
}

func hideWindow(*exec.Cmd) {}
