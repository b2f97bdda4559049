package notify

import "testing"

func TestTrackInfoBody(t *testing.T) {
	tests := []struct {
		name string
		info TrackInfo
		want string
	}{
		{
			name: "artist and album",
			info: TrackInfo{Title: "Song", Artist: "Artist", Album: "Album"},
			want: "Artist\nAlbum",
		},
		{
			name: "artist only",
			info: TrackInfo{Title: "Song", Artist: "Artist"},
			want: "Artist",
		},
		{
			name: "album only",
			info: TrackInfo{Title: "Song", Album: "Album"},
			want: "Album",
		},
		{
			name: "title only",
			info: TrackInfo{Title: "Song"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.body(); got != tt.want {
				t.Errorf("body() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStubNotifierIsSilent(t *testing.T) {
	var n Notifier = &stubNotifier{}

	if err := n.TrackChange(TrackInfo{Title: "Song"}); err != nil {
		t.Errorf("TrackChange() error = %v, want nil", err)
	}
	if err := n.Clear(); err != nil {
		t.Errorf("Clear() error = %v, want nil", err)
	}
}
