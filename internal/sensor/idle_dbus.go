package sensor

import (
	"context"

	"github.com/godbus/dbus/v5"

	"dimctl/internal/errors"
)

const (
	mutterIdleDest   = "org.gnome.Mutter.IdleMonitor"
	mutterIdlePath   = "/org/gnome/Mutter/IdleMonitor/Core"
	mutterIdleMethod = "org.gnome.Mutter.IdleMonitor.GetIdletime"

	screensaverDest   = "org.freedesktop.ScreenSaver"
	screensaverPath   = "/org/freedesktop/ScreenSaver"
	screensaverMethod = "org.freedesktop.ScreenSaver.GetSessionIdleTime"
)

// dbusIdleSource reads the session idle time over D-Bus. It prefers the
// Mutter idle monitor (millisecond resolution) and falls back to the
// freedesktop ScreenSaver interface, which KDE and others implement.
type dbusIdleSource struct {
	conn *dbus.Conn
}

// NewDBusIdleSource connects to the session bus.
func NewDBusIdleSource() (IdleSource, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, errors.New().Wrap(ErrBusUnavailable, err)
	}

	return &dbusIdleSource{conn: conn}, nil
}

func (s *dbusIdleSource) IdleSeconds(ctx context.Context) (float64, error) {
	var millis uint64
	err := s.conn.Object(mutterIdleDest, mutterIdlePath).
		CallWithContext(ctx, mutterIdleMethod, 0).
		Store(&millis)
	if err == nil {
		return float64(millis) / 1000.0, nil
	}

	var seconds uint32
	fallbackErr := s.conn.Object(screensaverDest, screensaverPath).
		CallWithContext(ctx, screensaverMethod, 0).
		Store(&seconds)
	if fallbackErr == nil {
		return float64(seconds), nil
	}

	return 0, errors.New().Wrap(ErrIdleQuery, err)
}
