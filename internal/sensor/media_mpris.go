package sensor

import (
	"context"
	"strings"

	"github.com/godbus/dbus/v5"

	"dimctl/internal/errors"
)

const (
	mprisPrefix         = "org.mpris.MediaPlayer2."
	mprisPath           = "/org/mpris/MediaPlayer2"
	mprisStatusProperty = "org.mpris.MediaPlayer2.Player.PlaybackStatus"
)

// mprisMediaSource polls every MPRIS player on the session bus. Any
// player reporting "Playing" counts as active media, unless the player
// is on the ignore list.
type mprisMediaSource struct {
	conn    *dbus.Conn
	ignored []string
}

// NewMPRISMediaSource connects to the session bus.
func NewMPRISMediaSource(ignored []string) (MediaSource, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, errors.New().Wrap(ErrBusUnavailable, err)
	}

	return &mprisMediaSource{conn: conn, ignored: ignored}, nil
}

func (s *mprisMediaSource) Name() string {
	return "mpris"
}

func (s *mprisMediaSource) setIgnored(ignored []string) {
	s.ignored = ignored
}

func (s *mprisMediaSource) Active(ctx context.Context) (bool, error) {
	var names []string
	err := s.conn.BusObject().
		CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).
		Store(&names)
	if err != nil {
		return false, errors.New().Wrap(ErrMediaQuery, err)
	}

	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		if ignoredMatch(s.ignored, strings.TrimPrefix(name, mprisPrefix)) {
			continue
		}

		variant, err := s.conn.Object(name, mprisPath).GetProperty(mprisStatusProperty)
		if err != nil {
			// Player vanished between ListNames and the property read.
			continue
		}
		if status, ok := variant.Value().(string); ok && status == "Playing" {
			return true, nil
		}
	}

	return false, nil
}
