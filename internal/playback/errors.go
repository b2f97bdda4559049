package playback

import (
	"context"
	"errors"
	"fmt"

	"github.com/llehouerou/subwave/internal/fetch"
	"github.com/llehouerou/subwave/internal/subsonic"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("playback: controller closed")

// ErrInvalidTransition is returned when a transport command is not legal in
// the current state.
var ErrInvalidTransition = errors.New("playback: invalid transition")

// ErrEmptyQueue is returned when a transport command needs a current track
// and the queue has none.
var ErrEmptyQueue = errors.New("playback: queue is empty")

// ErrorKind classifies a terminal playback failure.
type ErrorKind int

const (
	// ErrorNetwork: the stream could not be fetched and the retry budget
	// is spent, or the server rejected the request outright.
	ErrorNetwork ErrorKind = iota
	// ErrorAuth: the server rejected our credentials.
	ErrorAuth
	// ErrorDecode: the stream is corrupt or in an unsupported format.
	ErrorDecode
	// ErrorOutput: the audio device is unavailable.
	ErrorOutput
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrorNetwork:
		return "network"
	case ErrorAuth:
		return "auth"
	case ErrorDecode:
		return "decode"
	case ErrorOutput:
		return "output"
	default:
		return "unknown"
	}
}

// Error is a terminal playback failure for one track.
type Error struct {
	Kind    ErrorKind
	TrackID string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("playback: %s error on track %s: %v", e.Kind, e.TrackID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// classifyFetch maps a fetch failure to its kind. Transience is decided
// separately via retryable.
func classifyFetch(err error) ErrorKind {
	if fetch.IsAuth(err) || errors.Is(err, subsonic.ErrAuth) {
		return ErrorAuth
	}
	return ErrorNetwork
}

// retryable reports whether a fetch failure is worth reconnecting for.
// Definitive server answers (4xx) and cancellation are not.
func retryable(err error) bool {
	if fetch.IsTerminal(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
