package transport

import (
	"fmt"
	"strconv"
	"strings"
)

type ClientPort int

func (p ClientPort) String() string {
	return fmt.Sprintf("client_port=%d", int(p))
}

type ServerPort int

func (p ServerPort) String() string {
	return fmt.Sprintf("server_port=%d", int(p))
}

type SSRC string

func (p SSRC) String() string {
	return "ssrc=" + string(p)
}

func (s Spec) String() string {
	segments := []string{string(ProtocolUDP)}
	if s.Protocol != "" {
		segments[0] = string(s.Protocol)
	}
	if s.ClientPort > 0 {
		segments = append(segments, s.ClientPort.String())
	}
	if s.ServerPort > 0 {
		segments = append(segments, s.ServerPort.String())
	}
	if s.SSRC != "" {
		segments = append(segments, s.SSRC.String())
	}
	return strings.Join(segments, ";")
}

func parsePort(name, value string) (int, error) {
	// a range keeps its first port
	first := strings.Split(value, "-")[0]
	port, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s, received %s: %w", name, value, err)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%s out of range: %d", name, port)
	}
	return port, nil
}
