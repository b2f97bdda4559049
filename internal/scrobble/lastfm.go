package scrobble

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shkh/lastfm-go/lastfm"

	"github.com/llehouerou/subwave/internal/playback"
)

// ErrNotAuthenticated is returned when an operation requires a Last.fm
// session.
var ErrNotAuthenticated = errors.New("scrobble: last.fm session not established")

// LastFM submits plays to the Last.fm API.
type LastFM struct {
	api        *lastfm.Api
	apiKey     string
	sessionKey string
}

// NewLastFM creates a Last.fm submitter. sessionKey may be empty; in that
// case the desktop auth flow (GetToken/AuthURL/Session) must run first.
func NewLastFM(apiKey, apiSecret, sessionKey string) *LastFM {
	l := &LastFM{
		api:    lastfm.New(apiKey, apiSecret),
		apiKey: apiKey,
	}
	if sessionKey != "" {
		l.SetSessionKey(sessionKey)
	}
	return l
}

// SetSessionKey sets the authenticated session key.
func (l *LastFM) SetSessionKey(key string) {
	l.sessionKey = key
	l.api.SetSession(key)
}

// Authenticated returns true if a session key is set.
func (l *LastFM) Authenticated() bool {
	return l.sessionKey != ""
}

// GetToken requests an authentication token from Last.fm.
func (l *LastFM) GetToken() (string, error) {
	token, err := l.api.GetToken()
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	return token, nil
}

// AuthURL returns the URL the user must visit to authorize the token.
func (l *LastFM) AuthURL(token string) string {
	return fmt.Sprintf("https://www.last.fm/api/auth/?api_key=%s&token=%s", l.apiKey, token)
}

// Session exchanges an authorized token for a session key.
func (l *LastFM) Session(token string) (string, error) {
	if err := l.api.LoginWithToken(token); err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	l.sessionKey = l.api.GetSessionKey()
	return l.sessionKey, nil
}

func (l *LastFM) NowPlaying(_ context.Context, t playback.Track) error {
	if !l.Authenticated() {
		return ErrNotAuthenticated
	}
	_, err := l.api.Track.UpdateNowPlaying(trackParams(t, time.Time{}))
	if err != nil {
		return fmt.Errorf("update now playing: %w", err)
	}
	return nil
}

func (l *LastFM) Submit(_ context.Context, t playback.Track, startedAt time.Time) error {
	if !l.Authenticated() {
		return ErrNotAuthenticated
	}
	_, err := l.api.Track.Scrobble(trackParams(t, startedAt))
	if err != nil {
		return fmt.Errorf("scrobble: %w", err)
	}
	return nil
}

func trackParams(t playback.Track, startedAt time.Time) lastfm.P {
	params := lastfm.P{
		"artist": t.Artist,
		"track":  t.Title,
	}
	if t.Album != "" {
		params["album"] = t.Album
	}
	if t.Duration > 0 {
		params["duration"] = int(t.Duration.Seconds())
	}
	if !startedAt.IsZero() {
		params["timestamp"] = startedAt.Unix()
	}
	return params
}

var _ Submitter = (*LastFM)(nil)
