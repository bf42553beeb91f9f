package optimizer

// State is where the optimizer is in its run loop.
type State int32

const (
	Idle State = iota
	Running
	Success
	Failed
	Sleeping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Sleeping:
		return "sleeping"
	}
	return "unknown"
}

var allStates = []State{Idle, Running, Success, Failed, Sleeping}
