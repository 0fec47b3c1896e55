package capture

// State is the lifecycle position of the controller's capture session
type State int

const (
	Idle State = iota
	Acquiring
	Recording
	Finalizing
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// busy reports whether a start request must be refused.
func (s State) busy() bool {
	return s == Acquiring || s == Recording || s == Finalizing
}
