package playback

import (
	"time"

	"github.com/llehouerou/subwave/internal/replaygain"
)

// StateChange is emitted when the controller state changes. Exactly one
// event per transition, in order.
type StateChange struct {
	Previous State
	Current  State
}

// TrackChange is emitted when playback starts on a different track: on an
// initial Play, on Next/Previous/PlayTrackAt, and when a track ends and the
// queue advances automatically. Queue edits without playback do not emit it.
type TrackChange struct {
	Previous      *Track
	Current       *Track
	PreviousIndex int
	Index         int
}

// QueueChange is emitted when the queue contents or index change.
type QueueChange struct {
	Tracks []Track
	Index  int
}

// PositionChange is emitted when a seek occurs. Regular position progress
// is polled, not pushed.
type PositionChange struct {
	Position time.Duration
}

// VolumeChange is emitted when volume level or mute state changes.
type VolumeChange struct {
	Level float64
	Muted bool
}

// GainChange is emitted when the normalization mode changes or a new track
// gets its multiplier computed.
type GainChange struct {
	Mode    replaygain.Mode
	Applied replaygain.Result
}

// ErrorEvent is emitted when a track fails terminally. Err is always a
// *Error carrying the kind.
type ErrorEvent struct {
	Track *Track
	Err   error
}
