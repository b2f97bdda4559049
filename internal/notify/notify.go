// Package notify surfaces track changes as desktop notifications. Each new
// track replaces the previous notification instead of stacking, so skipping
// through a queue does not flood the shell.
package notify

import "fmt"

const (
	// notifyTimeoutMS is how long a track notification stays visible.
	notifyTimeoutMS = 5000
)

// TrackInfo is what a notification displays.
type TrackInfo struct {
	Title  string
	Artist string
	Album  string
}

func (t TrackInfo) body() string {
	switch {
	case t.Artist != "" && t.Album != "":
		return fmt.Sprintf("%s\n%s", t.Artist, t.Album)
	case t.Artist != "":
		return t.Artist
	default:
		return t.Album
	}
}

// Notifier shows track-change notifications. Implementations are no-ops
// when the platform has no notification service.
type Notifier interface {
	// TrackChange shows a notification for the track, replacing any
	// notification from a previous call.
	TrackChange(t TrackInfo) error
	// Clear dismisses the current notification, if any.
	Clear() error
}
