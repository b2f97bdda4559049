//go:build linux

package mpris

import (
	"testing"

	"github.com/quarckster/go-mpris-server/pkg/types"

	"github.com/llehouerou/subwave/internal/playback"
)

func TestStatusFor(t *testing.T) {
	cases := map[playback.State]types.PlaybackStatus{
		playback.StateIdle:    types.PlaybackStatusStopped,
		playback.StateLoading: types.PlaybackStatusPlaying,
		playback.StatePlaying: types.PlaybackStatusPlaying,
		playback.StatePaused:  types.PlaybackStatusPaused,
		playback.StateStalled: types.PlaybackStatusPlaying,
		playback.StateError:   types.PlaybackStatusStopped,
	}
	for state, want := range cases {
		if got := statusFor(state); got != want {
			t.Errorf("statusFor(%s) = %v, want %v", state, got, want)
		}
	}
}

func TestFormatTrackID(t *testing.T) {
	a := formatTrackID("song-1")
	b := formatTrackID("song-2")
	if a == b {
		t.Error("distinct tracks produced identical object paths")
	}
	if a != formatTrackID("song-1") {
		t.Error("track ID not stable")
	}
	if a[0] != '/' {
		t.Errorf("object path %q does not start with /", a)
	}
}
