package rtsp

import (
	"errors"
	"net/http"
)

var (
	ErrProtocolParse      = errors.New("malformed control message")
	ErrSessionMismatch    = errors.New("session mismatch")
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrIllegalTransition  = errors.New("command not allowed in current state")
	ErrRegistryExhausted  = errors.New("no session id available")
)

// statusFor maps a control plane error onto the reply code sent to the peer.
func statusFor(err error) int {
	if errors.Is(err, ErrUnsupportedCommand) {
		return http.StatusMethodNotAllowed
	}
	return http.StatusBadRequest
}
