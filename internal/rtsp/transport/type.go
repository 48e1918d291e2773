package transport

import "errors"

type Protocol string

const (
	ProtocolUDP Protocol = "RTP/UDP"
	ProtocolAVP Protocol = "RTP/AVP"
)

var (
	ErrUnsupportedTransport = errors.New("unsupported transport")
	ErrMissingPort          = errors.New("missing port parameter")
)

// Spec is the value of a Transport field. Zero ports are omitted when
// rendered.
type Spec struct {
	Protocol   Protocol
	ClientPort ClientPort
	ServerPort ServerPort
	SSRC       SSRC
}
