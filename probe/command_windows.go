//go:build windows

package probe

import (
	"net/netip"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/windows"
	"golang.org/x/text/encoding/charmap"
)

// Windows ping takes the reply wait time (-w) in milliseconds.
func pingCommand(addr netip.Addr, timeout time.Duration) (string, []string) {
	args := []string{"-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10)}
	if addr.Is6() && !addr.Is4In6() {
		args = append(args, "-6")
	} else {
		args = append(args, "-4")
	}
	return "ping", append(args, addr.String())
}

// decodeOutput converts the console code page output of ping. Windows-1252
// keeps the ASCII "time=" and "ms" tokens intact for most locales.
func decodeOutput(b []byte) string {
	s, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}
