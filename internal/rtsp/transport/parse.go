package transport

import (
	"errors"
	"fmt"
	"strings"
)

// Parse reads a Transport field value such as
// "RTP/UDP;client_port=5004;server_port=6970".
func Parse(in string) (*Spec, error) {
	parts := strings.Split(strings.TrimSpace(in), ";")
	if len(parts) < 1 || parts[0] == "" {
		return nil, errors.New("malformed transport header")
	}
	spec := &Spec{}
	switch Protocol(parts[0]) {
	case ProtocolUDP, ProtocolAVP, "RTP/AVP/UDP":
		spec.Protocol = Protocol(parts[0])
	default:
		return nil, ErrUnsupportedTransport
	}

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		dParts := strings.SplitN(part, "=", 2)
		switch {
		case part == "", part == "unicast":
			continue
		case dParts[0] == "client_port":
			if len(dParts) == 1 {
				return nil, errors.New("malformed parameter client_port expected a port")
			}
			port, err := parsePort("client_port", dParts[1])
			if err != nil {
				return nil, err
			}
			spec.ClientPort = ClientPort(port)
		case dParts[0] == "server_port":
			if len(dParts) == 1 {
				return nil, errors.New("malformed parameter server_port expected a port")
			}
			port, err := parsePort("server_port", dParts[1])
			if err != nil {
				return nil, err
			}
			spec.ServerPort = ServerPort(port)
		case dParts[0] == "ssrc":
			if len(dParts) == 2 {
				spec.SSRC = SSRC(dParts[1])
			}
		case dParts[0] == "mode":
			continue
		default:
			return nil, fmt.Errorf("unexpected parameter %s", part)
		}
	}
	return spec, nil
}

// RequireClientPort fails with ErrMissingPort when no client_port was given.
func (s *Spec) RequireClientPort() error {
	if s.ClientPort == 0 {
		return fmt.Errorf("%w: client_port", ErrMissingPort)
	}
	return nil
}

// RequireServerPort fails with ErrMissingPort when no server_port was given.
func (s *Spec) RequireServerPort() error {
	if s.ServerPort == 0 {
		return fmt.Errorf("%w: server_port", ErrMissingPort)
	}
	return nil
}
