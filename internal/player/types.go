package player

import (
	"errors"

	"github.com/bilbercode/framecast/internal/rtsp"
	"github.com/bilbercode/framecast/internal/stream"
)

var ErrSetupPending = errors.New("setup already in progress")

type EventType int

const (
	EventTypeUnknown EventType = iota
	EventTypeState
	EventTypeFrame
	EventTypeSubtitle
	EventTypeResources
	EventTypeError
)

func (t EventType) String() string {
	switch t {
	case EventTypeState:
		return "state"
	case EventTypeFrame:
		return "frame"
	case EventTypeSubtitle:
		return "subtitle"
	case EventTypeResources:
		return "resources"
	case EventTypeError:
		return "error"
	default:
		return "unknown"
	}
}

// Event carries the field matching its Type.
type Event struct {
	Type      EventType
	State     rtsp.State
	Frame     stream.Frame
	Subtitle  string
	Resources []string
	// Err is an *rtsp.ErrorReply for rejected requests, or the cause of a
	// lost control connection.
	Err error
}

// Service is what a display layer drives. Commands only send the request;
// their effect shows up in the queries and as events once the reply arrives.
type Service interface {
	State() rtsp.State
	Frame() []byte
	FrameNumber() int
	Subtitle() string
	Progress() float64
	Resources() []string
	Session() string

	Describe() error
	Setup(name string) error
	Load(name string) error
	Play() error
	Seek(fraction float64) error
	Pause() error
	Stop() error

	SetSpeed(speed float64)
	SetSubtitleMode(enabled bool)
	SetCompressMode(enabled bool)
	SetSubtitleAdjust(seconds float64)

	Subscribe(f func(*Event)) func()
	Close()
}

type Config struct {
	Server       string
	Ports        stream.PortRange
	BindAttempts int
	Window       int
	// EndGuard stops playback this many frames before the end of the
	// resource, or at its last frame when the resource is shorter.
	EndGuard int
}
