package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/llehouerou/subwave/internal/playback"
	"github.com/llehouerou/subwave/internal/replaygain"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := OpenPath(filepath.Join(t.TempDir(), "state", "test.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func ptr(f float64) *float64 { return &f }

func TestGetOnFreshDatabaseReturnsDefaults(t *testing.T) {
	m := openTestManager(t)

	st, err := m.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(st.Tracks) != 0 {
		t.Errorf("len(Tracks) = %d, want 0", len(st.Tracks))
	}
	if st.CurrentIndex != -1 {
		t.Errorf("CurrentIndex = %d, want -1", st.CurrentIndex)
	}
	if st.Volume != 1.0 {
		t.Errorf("Volume = %v, want 1.0", st.Volume)
	}
	if st.Muted {
		t.Error("Muted = true, want false")
	}
	if st.GainMode != replaygain.ModeOff {
		t.Errorf("GainMode = %v, want ModeOff", st.GainMode)
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	m := openTestManager(t)

	saved := Playback{
		Tracks: []playback.Track{
			{
				ID:          "t1",
				Title:       "First",
				Artist:      "Artist A",
				Album:       "Album A",
				TrackNumber: 1,
				Duration:    3 * time.Minute,
				Suffix:      "flac",
				BitRate:     900,
				Size:        20_000_000,
				Gain: replaygain.Tags{
					TrackGain: ptr(-6.5),
					AlbumGain: ptr(-4.2),
					TrackPeak: ptr(0.98),
				},
			},
			{
				ID:    "t2",
				Title: "Second",
				Gain:  replaygain.Tags{FallbackGain: ptr(-3)},
			},
		},
		CurrentIndex: 1,
		Position:     42 * time.Second,
		Volume:       0.7,
		Muted:        true,
		GainMode:     replaygain.ModeAlbum,
	}

	if err := m.Save(saved); err != nil {
		t.Fatalf("Save: %v", err)
	}

	st, err := m.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if len(st.Tracks) != 2 {
		t.Fatalf("len(Tracks) = %d, want 2", len(st.Tracks))
	}
	if st.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d, want 1", st.CurrentIndex)
	}
	if st.Position != 42*time.Second {
		t.Errorf("Position = %v, want 42s", st.Position)
	}
	if st.Volume != 0.7 {
		t.Errorf("Volume = %v, want 0.7", st.Volume)
	}
	if !st.Muted {
		t.Error("Muted = false, want true")
	}
	if st.GainMode != replaygain.ModeAlbum {
		t.Errorf("GainMode = %v, want ModeAlbum", st.GainMode)
	}

	got := st.Tracks[0]
	if got.ID != "t1" || got.Title != "First" || got.Artist != "Artist A" {
		t.Errorf("Tracks[0] = %+v, mismatched identity fields", got)
	}
	if got.Duration != 3*time.Minute {
		t.Errorf("Tracks[0].Duration = %v, want 3m", got.Duration)
	}
	if got.BitRate != 900 || got.Size != 20_000_000 {
		t.Errorf("Tracks[0] BitRate/Size = %d/%d, want 900/20000000", got.BitRate, got.Size)
	}
	if got.Gain.TrackGain == nil || *got.Gain.TrackGain != -6.5 {
		t.Errorf("Tracks[0].Gain.TrackGain = %v, want -6.5", got.Gain.TrackGain)
	}
	if got.Gain.TrackPeak == nil || *got.Gain.TrackPeak != 0.98 {
		t.Errorf("Tracks[0].Gain.TrackPeak = %v, want 0.98", got.Gain.TrackPeak)
	}
	if got.Gain.AlbumPeak != nil {
		t.Errorf("Tracks[0].Gain.AlbumPeak = %v, want nil", got.Gain.AlbumPeak)
	}

	got = st.Tracks[1]
	if got.ID != "t2" {
		t.Errorf("Tracks[1].ID = %q, want t2", got.ID)
	}
	if got.Gain.TrackGain != nil {
		t.Errorf("Tracks[1].Gain.TrackGain = %v, want nil", got.Gain.TrackGain)
	}
	if got.Gain.FallbackGain == nil || *got.Gain.FallbackGain != -3 {
		t.Errorf("Tracks[1].Gain.FallbackGain = %v, want -3", got.Gain.FallbackGain)
	}
}

func TestSaveReplacesPreviousQueue(t *testing.T) {
	m := openTestManager(t)

	first := Playback{
		Tracks:       []playback.Track{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		CurrentIndex: 2,
		Volume:       1.0,
	}
	if err := m.Save(first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second := Playback{
		Tracks:       []playback.Track{{ID: "x"}},
		CurrentIndex: 0,
		Volume:       0.5,
		GainMode:     replaygain.ModeTrack,
	}
	if err := m.Save(second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	st, err := m.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(st.Tracks) != 1 || st.Tracks[0].ID != "x" {
		t.Errorf("Tracks = %+v, want single track x", st.Tracks)
	}
	if st.GainMode != replaygain.ModeTrack {
		t.Errorf("GainMode = %v, want ModeTrack", st.GainMode)
	}
}

func TestSavePositionUpdatesOnlyPosition(t *testing.T) {
	m := openTestManager(t)

	if err := m.Save(Playback{
		Tracks:       []playback.Track{{ID: "a"}, {ID: "b"}},
		CurrentIndex: 0,
		Volume:       0.8,
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := m.SavePosition(1, 90*time.Second); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	st, err := m.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d, want 1", st.CurrentIndex)
	}
	if st.Position != 90*time.Second {
		t.Errorf("Position = %v, want 90s", st.Position)
	}
	if st.Volume != 0.8 {
		t.Errorf("Volume = %v, want 0.8 (unchanged)", st.Volume)
	}
	if len(st.Tracks) != 2 {
		t.Errorf("len(Tracks) = %d, want 2 (unchanged)", len(st.Tracks))
	}
}

func TestSaveVolumeOnEmptyDatabase(t *testing.T) {
	m := openTestManager(t)

	if err := m.SaveVolume(0.3, true); err != nil {
		t.Fatalf("SaveVolume: %v", err)
	}

	st, err := m.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.Volume != 0.3 {
		t.Errorf("Volume = %v, want 0.3", st.Volume)
	}
	if !st.Muted {
		t.Error("Muted = false, want true")
	}
	if st.CurrentIndex != -1 {
		t.Errorf("CurrentIndex = %d, want -1 (schema default)", st.CurrentIndex)
	}
}
