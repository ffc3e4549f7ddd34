// Package notify forwards transport session failures to a desktop
// notification daemon over the D-Bus session bus
// (org.freedesktop.Notifications), for an operator running
// "sshcorectl shell" interactively on a workstation rather than watching
// a log stream.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/sshcore/transport/internal/server"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = "/org/freedesktop/Notifications"
	notifyIface = "org.freedesktop.Notifications.Notify"

	appName  = "sshcorectl"
	appIcon  = "dialog-error"
	expireMS = 5000
)

// notifier abstracts the one D-Bus call this package makes, so Watch's
// filtering logic can be tested without a live session bus.
type notifier interface {
	Notify(summary, body string) error
}

// dbusNotifier is the real notifier, calling org.freedesktop.Notifications.
type dbusNotifier struct {
	conn *dbus.Conn
}

func (n dbusNotifier) Notify(summary, body string) error {
	obj := n.conn.Object(notifyDest, dbus.ObjectPath(notifyPath))
	call := obj.Call(notifyIface, 0,
		appName,
		uint32(0),
		appIcon,
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{},
		int32(expireMS),
	)
	if call.Err != nil {
		return fmt.Errorf("notify: Notify call: %w", call.Err)
	}
	return nil
}

// Sink watches a Registry's event stream and forwards every session that
// enters the ERROR phase to the desktop notification daemon.
type Sink struct {
	conn     *dbus.Conn
	notifier notifier
	logger   *slog.Logger
}

// Dial connects to the caller's D-Bus session bus. Callers should Close
// the returned Sink once done watching.
func Dial(logger *slog.Logger) (*Sink, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("notify: connect session bus: %w", err)
	}

	return &Sink{
		conn:     conn,
		notifier: dbusNotifier{conn: conn},
		logger:   logger.With(slog.String("component", "notify")),
	}, nil
}

// newSinkWithNotifier builds a Sink around an arbitrary notifier, for
// tests that exercise Watch's filtering logic without a live D-Bus
// connection.
func newSinkWithNotifier(n notifier, logger *slog.Logger) *Sink {
	return &Sink{notifier: n, logger: logger.With(slog.String("component", "notify"))}
}

// Close closes the underlying D-Bus connection. A Sink built without one
// (via newSinkWithNotifier) is a no-op.
func (s *Sink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Watch consumes ch — typically the channel returned by
// server.Registry.Subscribe — until it closes or ctx is done, forwarding
// every PHASE_CHANGED event whose session is now in the ERROR phase.
// Notification failures are logged at Warn and do not stop the watch.
func (s *Sink) Watch(ctx context.Context, ch <-chan server.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.handle(ev)
		}
	}
}

func (s *Sink) handle(ev server.Event) {
	if ev.Type != server.EventPhaseChanged || !ev.Session.InError {
		return
	}

	summary := fmt.Sprintf("sshcore session %d entered ERROR", ev.SessionID)
	if err := s.notifier.Notify(summary, ev.Session.Error); err != nil {
		s.logger.Warn("failed to send desktop notification",
			slog.Uint64("session_id", ev.SessionID),
			slog.Any("error", err),
		)
	}
}
