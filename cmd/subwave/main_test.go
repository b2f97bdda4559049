package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/llehouerou/subwave/internal/fetch"
	"github.com/llehouerou/subwave/internal/notify"
	"github.com/llehouerou/subwave/internal/playback"
	"github.com/llehouerou/subwave/internal/player"
	"github.com/llehouerou/subwave/internal/state"
)

type stubURLs struct{}

func (stubURLs) StreamURL(id, format string, maxBitRate int) string {
	return "http://server/rest/stream?id=" + id
}

type stubFetcher struct {
	data []byte
}

func (f *stubFetcher) Open(_ context.Context, _ string, offset int64) (*fetch.Stream, error) {
	if offset > int64(len(f.data)) {
		offset = int64(len(f.data))
	}
	return &fetch.Stream{
		Body:          io.NopCloser(bytes.NewReader(f.data[offset:])),
		Offset:        offset,
		ContentLength: int64(len(f.data)) - offset,
	}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	tracks []notify.TrackInfo
}

func (n *recordingNotifier) TrackChange(t notify.TrackInfo) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tracks = append(n.tracks, t)
	return nil
}

func (n *recordingNotifier) Clear() error { return nil }

func (n *recordingNotifier) seen() []notify.TrackInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.TrackInfo, len(n.tracks))
	copy(out, n.tracks)
	return out
}

// finishTrack waits for the nth sink start, then plays the track to its end.
func finishTrack(t *testing.T, mock *player.Mock, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(mock.StartCalls()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("track %d never started", n)
		}
		time.Sleep(time.Millisecond)
	}
	mock.Emit(player.Event{Kind: player.EventFinished})
}

// The subscription is created before the first transport command, so the
// event loop must observe the first track's TrackChange and exit once the
// queue plays out.
func TestEventLoopSeesFirstTrackAndExitsAtQueueEnd(t *testing.T) {
	mock := player.NewMock()
	ctrl := playback.New(mock, &stubFetcher{data: make([]byte, 4096)}, stubURLs{}, playback.Options{})
	defer ctrl.Close()

	stateMgr, err := state.OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	defer stateMgr.Close()

	notifier := &recordingNotifier{}

	// Same ordering as run(): subscribe, then enqueue and start.
	sub := ctrl.Subscribe()
	queue := []playback.Track{
		{ID: "a", Title: "First", Artist: "Artist", Suffix: "mp3"},
		{ID: "b", Title: "Second", Artist: "Artist", Suffix: "mp3"},
	}
	if err := ctrl.SetQueue(queue); err != nil {
		t.Fatalf("SetQueue: %v", err)
	}
	if err := ctrl.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- eventLoop(context.Background(), ctrl, sub, stateMgr, notifier, 0, zerolog.Nop())
	}()

	finishTrack(t, mock, 1)
	finishTrack(t, mock, 2)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("eventLoop() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("eventLoop did not exit after the queue finished")
	}

	seen := notifier.seen()
	if len(seen) != 2 {
		t.Fatalf("notified %d tracks, want 2: %+v", len(seen), seen)
	}
	if seen[0].Title != "First" {
		t.Errorf("first notification = %q, want %q", seen[0].Title, "First")
	}
	if seen[1].Title != "Second" {
		t.Errorf("second notification = %q, want %q", seen[1].Title, "Second")
	}
}
