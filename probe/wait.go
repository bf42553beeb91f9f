package probe

import "time"

// waitSeconds rounds a probe timeout up to whole seconds, at least one.
func waitSeconds(timeout time.Duration) int {
	s := int((timeout + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
