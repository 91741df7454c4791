package sensor

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/jfreymuth/pulse/proto"

	"dimctl/internal/errors"
)

// pulseMediaSource asks PulseAudio for running playback streams. A sink
// input that is neither corked nor muted means something is audibly
// rendering, which catches players that do not speak MPRIS. Streams
// owned by ignored applications do not count.
type pulseMediaSource struct {
	mu      sync.Mutex
	client  *proto.Client
	conn    net.Conn
	ignored []string
}

// NewPulseMediaSource connects to the local PulseAudio server.
func NewPulseMediaSource(ignored []string) (MediaSource, error) {
	errFactory := errors.New()

	client, conn, err := proto.Connect("")
	if err != nil {
		return nil, errFactory.Wrap(ErrBusUnavailable, err)
	}

	if err := client.Request(&proto.SetClientName{}, nil); err != nil {
		conn.Close()
		return nil, errFactory.Wrap(ErrBusUnavailable, err)
	}

	return &pulseMediaSource{client: client, conn: conn, ignored: ignored}, nil
}

func (s *pulseMediaSource) Name() string {
	return "pulseaudio"
}

func (s *pulseMediaSource) setIgnored(ignored []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignored = ignored
}

func (s *pulseMediaSource) Active(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reply proto.GetSinkInputInfoListReply
	if err := s.client.Request(&proto.GetSinkInputInfoList{}, &reply); err != nil {
		return false, errors.New().Wrap(ErrMediaQuery, err)
	}

	for _, input := range reply {
		if input == nil || input.Corked || input.Muted {
			continue
		}
		if ignoredMatch(s.ignored, streamApplication(input)) {
			continue
		}

		return true, nil
	}

	return false, nil
}

// Close releases the PulseAudio connection.
func (s *pulseMediaSource) Close() error {
	return s.conn.Close()
}

// streamApplication extracts the owning application's name from a sink
// input, falling back to the stream's media name.
func streamApplication(input *proto.GetSinkInputInfoReply) string {
	for _, key := range []string{"application.name", "application.process.binary"} {
		if v := propString(input.Properties, key); v != "" {
			return v
		}
	}

	return input.MediaName
}

func propString(props proto.PropList, key string) string {
	entry, ok := props[key]
	if !ok {
		return ""
	}
	if s, ok := any(entry).(fmt.Stringer); ok {
		return strings.TrimRight(s.String(), "\x00")
	}

	return ""
}
