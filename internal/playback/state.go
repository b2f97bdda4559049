package playback

// State represents the controller state.
type State int

const (
	// StateIdle: no track loaded, no pipeline running.
	StateIdle State = iota
	// StateLoading: a pipeline is being primed; no audio yet.
	StateLoading
	// StatePlaying: audio is flowing to the device.
	StatePlaying
	// StatePaused: pipeline alive, output suspended.
	StatePaused
	// StateStalled: the network fell behind the decoder; output degraded
	// to silence until the buffer refills.
	StateStalled
	// StateError: the current track failed terminally.
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLoading:
		return "Loading"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateStalled:
		return "Stalled"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// IsActive returns true when a pipeline exists for the current track.
func (s State) IsActive() bool {
	switch s {
	case StateLoading, StatePlaying, StatePaused, StateStalled:
		return true
	default:
		return false
	}
}
