package rtsp

import "fmt"

type State int

const (
	StateInit State = iota
	StateReady
	StatePlaying
	StatePausing
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReady:
		return "READY"
	case StatePlaying:
		return "PLAYING"
	case StatePausing:
		return "PAUSING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transition returns the state a session moves to when method succeeds in
// state s. Both peers use it: the client before sending, the server before
// acting.
func Transition(s State, method Method) (State, error) {
	switch method {
	case MethodDescribe:
		return s, nil
	case MethodSetup:
		if s == StateInit {
			return StateReady, nil
		}
	case MethodPlay:
		if s == StateReady || s == StatePlaying || s == StatePausing {
			return StatePlaying, nil
		}
	case MethodPause:
		if s == StatePlaying {
			return StatePausing, nil
		}
	case MethodTeardown:
		if s == StateReady || s == StatePlaying || s == StatePausing {
			return StateInit, nil
		}
	default:
		return s, fmt.Errorf("%w: %s", ErrUnsupportedCommand, method)
	}
	return s, fmt.Errorf("%w: %s in state %s", ErrIllegalTransition, method, s)
}
