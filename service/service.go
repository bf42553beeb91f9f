// Package service lets the optimizer run under the host service
// manager. Only the Windows service control manager is supported;
// elsewhere Run calls the function directly and the install commands
// return ErrUnsupported (use systemd or launchd unit files instead).
package service

import "errors"

const (
	DefaultName        = "cdnopt"
	DefaultDisplayName = "CDN address optimizer"

	description = "Finds the lowest latency CDN edge address and keeps a DNS record pointed at it."
)

var ErrUnsupported = errors.New("service management is not supported on this platform")
