//go:build linux

package notify

import (
	"github.com/godbus/dbus/v5"
)

const (
	notifyDest      = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyInterface = "org.freedesktop.Notifications"
)

// dbusNotifier talks to the freedesktop notification service on the session
// bus. It remembers the last notification ID so each track replaces the one
// before it.
type dbusNotifier struct {
	obj    dbus.BusObject
	lastID uint32
}

// New creates a Notifier backed by the session bus. When no session bus is
// reachable it returns a no-op notifier rather than an error; notifications
// are a convenience, not a requirement.
func New() (Notifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return &stubNotifier{}, nil //nolint:nilerr // headless sessions are fine
	}
	return &dbusNotifier{obj: conn.Object(notifyDest, notifyPath)}, nil
}

func (n *dbusNotifier) TrackChange(t TrackInfo) error {
	hints := map[string]dbus.Variant{
		"urgency":       dbus.MakeVariant(byte(0)), // low
		"desktop-entry": dbus.MakeVariant("subwave"),
	}

	// Notify(app_name, replaces_id, icon, summary, body, actions, hints,
	// timeout) -> id
	call := n.obj.Call(
		notifyInterface+".Notify",
		0,
		"Subwave",
		n.lastID,
		"audio-x-generic",
		t.Title,
		t.body(),
		[]string{},
		hints,
		int32(notifyTimeoutMS),
	)
	if call.Err != nil {
		return call.Err
	}
	return call.Store(&n.lastID)
}

func (n *dbusNotifier) Clear() error {
	if n.lastID == 0 {
		return nil
	}
	call := n.obj.Call(notifyInterface+".CloseNotification", 0, n.lastID)
	n.lastID = 0
	return call.Err
}

// stubNotifier is used when the session bus is unavailable.
type stubNotifier struct{}

func (s *stubNotifier) TrackChange(_ TrackInfo) error { return nil }

func (s *stubNotifier) Clear() error { return nil }
