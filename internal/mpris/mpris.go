//go:build linux

// Package mpris bridges the playback controller to the org.mpris
// MediaPlayer2 D-Bus interface, so desktop media keys and applets control
// playback. A missing session bus is tolerated: the adapter logs and stays
// inert.
package mpris

import (
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/events"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"
	"github.com/rs/zerolog"

	"github.com/llehouerou/subwave/internal/playback"
)

// Adapter connects the playback controller to MPRIS over D-Bus.
type Adapter struct {
	ctrl   *playback.Controller
	server *server.Server
	events *events.EventHandler
	sub    *playback.Subscription
	log    zerolog.Logger
	done   chan struct{}
}

// New creates and starts a new MPRIS adapter.
func New(ctrl *playback.Controller, log zerolog.Logger) (*Adapter, error) {
	a := &Adapter{
		ctrl: ctrl,
		log:  log,
		done: make(chan struct{}),
	}

	a.server = server.NewServer("subwave", &rootAdapter{}, &playerAdapter{ctrl: ctrl})
	a.events = events.NewEventHandler(a.server)
	a.sub = ctrl.Subscribe()

	go func() {
		// Bus unavailability is non-fatal; playback works without
		// desktop integration.
		if err := a.server.Listen(); err != nil {
			a.log.Warn().Err(err).Msg("mpris unavailable")
		}
	}()
	go a.pump()

	return a, nil
}

// pump forwards controller events to the bus as property-change signals.
func (a *Adapter) pump() {
	for {
		select {
		case <-a.sub.StateChanged:
			a.emit(a.events.Player.OnPlayPause)
		case <-a.sub.TrackChanged:
			a.emit(a.events.Player.OnTitle)
			a.emit(a.events.Player.OnOptions)
		case pc := <-a.sub.PositionChanged:
			if err := a.events.Player.OnSeek(types.Microseconds(pc.Position.Microseconds())); err != nil {
				a.log.Debug().Err(err).Msg("mpris signal failed")
			}
		case <-a.sub.VolumeChanged:
			a.emit(a.events.Player.OnVolume)
		case <-a.sub.QueueChanged:
			a.emit(a.events.Player.OnOptions)
		case <-a.sub.Done:
			return
		case <-a.done:
			return
		}
	}
}

func (a *Adapter) emit(fn func() error) {
	if err := fn(); err != nil {
		a.log.Debug().Err(err).Msg("mpris signal failed")
	}
}

// Close stops the adapter and releases D-Bus resources.
func (a *Adapter) Close() error {
	close(a.done)
	return a.server.Stop()
}

// rootAdapter implements OrgMprisMediaPlayer2Adapter.
type rootAdapter struct{}

func (r *rootAdapter) Raise() error {
	return nil // Not supported
}

func (r *rootAdapter) Quit() error {
	return nil // Not supported - app manages its own lifecycle
}

func (r *rootAdapter) CanQuit() (bool, error) {
	return false, nil
}

func (r *rootAdapter) CanRaise() (bool, error) {
	return false, nil
}

func (r *rootAdapter) HasTrackList() (bool, error) {
	return false, nil // Track list interface not implemented
}

func (r *rootAdapter) Identity() (string, error) {
	return "Subwave", nil
}

//nolint:revive // Method name required by interface.
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{"http", "https"}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/mpeg", "audio/flac", "audio/ogg"}, nil
}

// playerAdapter implements OrgMprisMediaPlayer2PlayerAdapter. Transport
// commands that are not legal in the current state are swallowed: bus
// clients fire them blindly and a failed no-op should not surface as a
// D-Bus error.
type playerAdapter struct {
	ctrl *playback.Controller
}

func tolerate(err error) error {
	if errors.Is(err, playback.ErrInvalidTransition) || errors.Is(err, playback.ErrEmptyQueue) {
		return nil
	}
	return err
}

func (p *playerAdapter) Next() error {
	return tolerate(p.ctrl.Next())
}

func (p *playerAdapter) Previous() error {
	return tolerate(p.ctrl.Previous())
}

func (p *playerAdapter) Pause() error {
	return tolerate(p.ctrl.Pause())
}

func (p *playerAdapter) PlayPause() error {
	return tolerate(p.ctrl.Toggle())
}

func (p *playerAdapter) Stop() error {
	return tolerate(p.ctrl.Stop())
}

func (p *playerAdapter) Play() error {
	return tolerate(p.ctrl.Play())
}

func (p *playerAdapter) Seek(offset types.Microseconds) error {
	return tolerate(p.ctrl.Seek(time.Duration(offset) * time.Microsecond))
}

func (p *playerAdapter) SetPosition(_ string, position types.Microseconds) error {
	return tolerate(p.ctrl.SeekTo(time.Duration(position) * time.Microsecond))
}

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(_ string) error {
	return nil // Not supported
}

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	return statusFor(p.ctrl.State()), nil
}

// statusFor collapses the controller states onto the three MPRIS statuses.
// Loading and Stalled read as Playing: audio is underway, just not audible
// yet.
func statusFor(s playback.State) types.PlaybackStatus {
	switch s {
	case playback.StateLoading, playback.StatePlaying, playback.StateStalled:
		return types.PlaybackStatusPlaying
	case playback.StatePaused:
		return types.PlaybackStatusPaused
	default: // Idle, Error
		return types.PlaybackStatusStopped
	}
}

func (p *playerAdapter) Rate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) SetRate(_ float64) error {
	return nil // Not supported
}

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	track := p.ctrl.Current()
	if track == nil {
		return types.Metadata{}, nil
	}

	return types.Metadata{
		TrackId:     dbus.ObjectPath(formatTrackID(track.ID)),
		Length:      types.Microseconds(track.Duration.Microseconds()),
		Title:       track.Title,
		Artist:      []string{track.Artist},
		Album:       track.Album,
		TrackNumber: track.TrackNumber,
	}, nil
}

func (p *playerAdapter) Volume() (float64, error) {
	return p.ctrl.Volume(), nil
}

func (p *playerAdapter) SetVolume(level float64) error {
	return p.ctrl.SetVolume(level)
}

func (p *playerAdapter) Position() (int64, error) {
	return p.ctrl.Position().Microseconds(), nil
}

func (p *playerAdapter) MinimumRate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) MaximumRate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) CanGoNext() (bool, error) {
	// Next wraps, so any non-empty queue can advance.
	return len(p.ctrl.Tracks()) > 0, nil
}

func (p *playerAdapter) CanGoPrevious() (bool, error) {
	return p.ctrl.Index() > 0, nil
}

func (p *playerAdapter) CanPlay() (bool, error) {
	return len(p.ctrl.Tracks()) > 0, nil
}

func (p *playerAdapter) CanPause() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanSeek() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanControl() (bool, error) {
	return true, nil
}

func formatTrackID(id string) string {
	h := fnv.New64a()
	h.Write([]byte(id))
	return fmt.Sprintf("/org/mpris/MediaPlayer2/Track/%x", h.Sum64())
}
