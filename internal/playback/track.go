package playback

import (
	"time"

	"github.com/llehouerou/subwave/internal/replaygain"
)

// Track is one playable queue entry. Immutable once built from server
// metadata.
type Track struct {
	ID          string
	Title       string
	Artist      string
	Album       string
	TrackNumber int
	Duration    time.Duration
	Suffix      string
	BitRate     int   // kbit/s, 0 when unknown
	Size        int64 // encoded bytes, 0 when unknown
	Gain        replaygain.Tags
}

// byteOffset maps a playback position to an absolute byte offset in the
// encoded stream, using the exact size/duration ratio when both are known
// and falling back to the nominal bitrate. Returns 0 when no estimate is
// possible, which degrades a seek into a restart from the beginning.
func (t Track) byteOffset(pos time.Duration) int64 {
	if pos <= 0 {
		return 0
	}
	var off int64
	switch {
	case t.Size > 0 && t.Duration > 0:
		off = int64(float64(t.Size) * (pos.Seconds() / t.Duration.Seconds()))
	case t.BitRate > 0:
		off = int64(pos.Seconds() * float64(t.BitRate) * 1000 / 8)
	default:
		return 0
	}
	if t.Size > 0 && off >= t.Size {
		off = t.Size - 1
	}
	if off < 0 {
		off = 0
	}
	return off
}
