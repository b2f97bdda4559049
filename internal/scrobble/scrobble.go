// Package scrobble reports listening activity: a now-playing note when a
// track starts, and a submission once enough of the track has played. The
// media server is always notified; Last.fm is optional.
package scrobble

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/llehouerou/subwave/internal/playback"
)

const (
	// submitCap bounds the listen threshold for long tracks, per the
	// usual scrobbling convention.
	submitCap      = 4 * time.Minute
	pollInterval   = 5 * time.Second
	requestTimeout = 10 * time.Second
)

// Submitter receives listening reports for one destination.
type Submitter interface {
	NowPlaying(ctx context.Context, t playback.Track) error
	Submit(ctx context.Context, t playback.Track, startedAt time.Time) error
}

// threshold returns the position after which a track counts as listened:
// half its duration, capped at four minutes. Tracks with unknown duration
// use the cap.
func threshold(d time.Duration) time.Duration {
	if d <= 0 {
		return submitCap
	}
	if half := d / 2; half < submitCap {
		return half
	}
	return submitCap
}

// Watcher follows controller events and reports plays to its submitters.
// Each track is submitted at most once.
type Watcher struct {
	subs     []Submitter
	log      zerolog.Logger
	position func() time.Duration
	events   *playback.Subscription

	current   *playback.Track
	startedAt time.Time
	submitted bool

	done chan struct{}
	once sync.Once
}

// New subscribes to the controller and starts watching.
func New(ctrl *playback.Controller, log zerolog.Logger, subs ...Submitter) *Watcher {
	w := &Watcher{
		subs:     subs,
		log:      log,
		position: ctrl.Position,
		events:   ctrl.Subscribe(),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// Close stops the watcher.
func (w *Watcher) Close() {
	w.once.Do(func() { close(w.done) })
}

func (w *Watcher) run() {
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		select {
		case tc := <-w.events.TrackChanged:
			w.onTrack(tc.Current, time.Now())
		case <-tick.C:
			w.onTick()
		case <-w.events.Done:
			return
		case <-w.done:
			return
		}
	}
}

// onTrack resets the per-track accounting and announces the new track.
func (w *Watcher) onTrack(t *playback.Track, at time.Time) {
	w.current = t
	w.startedAt = at
	w.submitted = false
	if t == nil {
		return
	}
	track := *t
	for _, s := range w.subs {
		go func(s Submitter) {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			if err := s.NowPlaying(ctx, track); err != nil {
				w.log.Debug().Err(err).Str("track", track.ID).Msg("now playing report failed")
			}
		}(s)
	}
}

// onTick submits the current track once playback passes the threshold.
func (w *Watcher) onTick() {
	t := w.current
	if t == nil || w.submitted {
		return
	}
	if w.position() < threshold(t.Duration) {
		return
	}
	w.submitted = true
	track, startedAt := *t, w.startedAt
	for _, s := range w.subs {
		go func(s Submitter) {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			if err := s.Submit(ctx, track, startedAt); err != nil {
				w.log.Warn().Err(err).Str("track", track.ID).Msg("scrobble failed")
			}
		}(s)
	}
}
