package playback

import (
	"testing"
	"time"
)

func TestTrackByteOffset(t *testing.T) {
	tests := []struct {
		name  string
		track Track
		pos   time.Duration
		want  int64
	}{
		{
			name:  "exact size and duration",
			track: Track{Size: 1_800_000, Duration: 180 * time.Second},
			pos:   60 * time.Second,
			want:  600_000,
		},
		{
			name:  "bitrate fallback",
			track: Track{BitRate: 320, Duration: 180 * time.Second},
			pos:   10 * time.Second,
			want:  400_000, // 320 kbit/s = 40000 B/s
		},
		{
			name:  "no estimate possible",
			track: Track{Duration: 180 * time.Second},
			pos:   60 * time.Second,
			want:  0,
		},
		{
			name:  "zero position",
			track: Track{Size: 1000, Duration: time.Second},
			pos:   0,
			want:  0,
		},
		{
			name:  "clamped below size",
			track: Track{Size: 1000, Duration: time.Second},
			pos:   time.Minute,
			want:  999,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.track.byteOffset(tt.pos); got != tt.want {
				t.Errorf("byteOffset(%v) = %d, want %d", tt.pos, got, tt.want)
			}
		})
	}
}
