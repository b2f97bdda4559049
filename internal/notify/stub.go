//go:build !linux

package notify

// stubNotifier is a no-op notifier for platforms without the freedesktop
// notification service.
type stubNotifier struct{}

// New returns a no-op notifier on non-Linux platforms.
func New() (Notifier, error) {
	return &stubNotifier{}, nil
}

func (s *stubNotifier) TrackChange(_ TrackInfo) error { return nil }

func (s *stubNotifier) Clear() error { return nil }
