package scrobble

import (
	"context"
	"time"

	"github.com/llehouerou/subwave/internal/playback"
	"github.com/llehouerou/subwave/internal/subsonic"
)

// Server reports plays to the media server's scrobble endpoint, which also
// feeds the server's own play counts and now-playing view.
type Server struct {
	client *subsonic.Client
}

// NewServer wraps a Subsonic client as a Submitter.
func NewServer(c *subsonic.Client) *Server {
	return &Server{client: c}
}

func (s *Server) NowPlaying(ctx context.Context, t playback.Track) error {
	return s.client.Scrobble(ctx, t.ID, false, time.Time{})
}

func (s *Server) Submit(ctx context.Context, t playback.Track, startedAt time.Time) error {
	return s.client.Scrobble(ctx, t.ID, true, startedAt)
}

var _ Submitter = (*Server)(nil)
