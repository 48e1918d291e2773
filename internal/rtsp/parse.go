package rtsp

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bilbercode/framecast/internal/rtsp/transport"
)

type message struct {
	line   string
	fields map[string]string
}

// splitMessage separates the first line from the field lines. A field line
// belongs to the first known field name its first token contains, so the
// colon after the name is optional.
func splitMessage(text string) (*message, error) {
	m := &message{fields: make(map[string]string)}
	first := true
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if first {
			if strings.TrimSpace(line) == "" {
				continue
			}
			m.line = line
			first = false
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		token, value, _ := strings.Cut(line, " ")
		for _, name := range knownFields {
			if strings.Contains(token, name) {
				if _, seen := m.fields[name]; !seen {
					m.fields[name] = strings.TrimSpace(value)
				}
				break
			}
		}
	}
	if first {
		return nil, fmt.Errorf("%w: empty message", ErrProtocolParse)
	}
	return m, nil
}

func (m *message) require(name string) (string, error) {
	value, ok := m.fields[name]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", ErrProtocolParse, name)
	}
	return value, nil
}

func (m *message) sequence() (int, error) {
	value, err := m.require(fieldCSeq)
	if err != nil {
		return 0, err
	}
	seq, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid CSeq %q", ErrProtocolParse, value)
	}
	return seq, nil
}

func (m *message) session() (string, error) {
	value, err := m.require(fieldSession)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", fmt.Errorf("%w: empty Session", ErrProtocolParse)
	}
	return value, nil
}

// SequenceOf returns the CSeq of a raw message, or 0 when it has none.
func SequenceOf(text string) int {
	m, err := splitMessage(text)
	if err != nil {
		return 0
	}
	seq, err := m.sequence()
	if err != nil {
		return 0
	}
	return seq
}

// ParseRequest reads one request message into its per-command variant.
func ParseRequest(text string) (Request, error) {
	m, err := splitMessage(text)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(m.line, " ")
	if len(parts) < 3 || !strings.HasPrefix(parts[2], "RTSP/") {
		return nil, fmt.Errorf("%w: request line %q", ErrProtocolParse, m.line)
	}
	method := Method(parts[0])
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCommand, parts[0])
	}

	seq, err := m.sequence()
	if err != nil {
		return nil, err
	}
	header := RequestHeader{URL: parts[1], CSeq: seq}

	switch method {
	case MethodDescribe:
		header.Session = m.fields[fieldSession]
		return &DescribeRequest{RequestHeader: header}, nil
	case MethodSetup:
		value, err := m.require(fieldTransport)
		if err != nil {
			return nil, err
		}
		spec, err := transport.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocolParse, err)
		}
		if err := spec.RequireClientPort(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocolParse, err)
		}
		return &SetupRequest{RequestHeader: header, Transport: *spec}, nil
	}

	header.Session, err = m.session()
	if err != nil {
		return nil, err
	}

	switch method {
	case MethodPlay:
		return parsePlay(m, header)
	case MethodPause:
		return &PauseRequest{RequestHeader: header}, nil
	default:
		return &TeardownRequest{RequestHeader: header}, nil
	}
}

func parsePlay(m *message, header RequestHeader) (*PlayRequest, error) {
	r := &PlayRequest{RequestHeader: header, Params: DefaultPlaybackParams()}
	var err error

	if value, ok := m.fields[fieldRange]; ok {
		value = strings.TrimPrefix(value, "npt=")
		value = strings.TrimSuffix(value, "-")
		position, err := strconv.ParseFloat(value, 64)
		if err != nil || position < 0 {
			return nil, fmt.Errorf("%w: invalid Range %q", ErrProtocolParse, m.fields[fieldRange])
		}
		r.Range = int(position)
		r.HasRange = true
	}
	if value, ok := m.fields[fieldSpeed]; ok {
		if r.Params.Speed, err = strconv.ParseFloat(value, 64); err != nil {
			return nil, fmt.Errorf("%w: invalid Speed %q", ErrProtocolParse, value)
		}
	}
	if value, ok := m.fields[fieldSubtitleMode]; ok {
		if r.Params.SubtitleMode, err = strconv.ParseBool(value); err != nil {
			return nil, fmt.Errorf("%w: invalid Subtitle-Mode %q", ErrProtocolParse, value)
		}
	}
	if value, ok := m.fields[fieldCompressMode]; ok {
		if r.Params.CompressMode, err = strconv.ParseBool(value); err != nil {
			return nil, fmt.Errorf("%w: invalid Compress-Mode %q", ErrProtocolParse, value)
		}
	}
	if value, ok := m.fields[fieldSubtitleAdjust]; ok {
		if r.Params.SubtitleAdjust, err = strconv.ParseFloat(value, 64); err != nil {
			return nil, fmt.Errorf("%w: invalid Subtitle-Adjust %q", ErrProtocolParse, value)
		}
	}
	return r, nil
}

// ParseReply reads a reply to a request of the given method. Non-200 replies
// come back as *ErrorReply with only the status line read.
func ParseReply(text string, method Method) (Reply, error) {
	m, err := splitMessage(text)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(m.line, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "RTSP/") {
		return nil, fmt.Errorf("%w: status line %q", ErrProtocolParse, m.line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: status code %q", ErrProtocolParse, parts[1])
	}
	status := Status{Code: code}
	if len(parts) == 3 {
		status.Reason = parts[2]
	}
	if code != http.StatusOK {
		return &ErrorReply{Status: status}, nil
	}

	if status.CSeq, err = m.sequence(); err != nil {
		return nil, err
	}

	switch method {
	case MethodDescribe:
		value, err := m.require(fieldList)
		if err != nil {
			return nil, err
		}
		return &DescribeReply{Status: status, List: DecodeList(value)}, nil
	case MethodSetup:
		return parseSetupReply(m, status)
	case MethodPlay:
		session, err := m.session()
		if err != nil {
			return nil, err
		}
		return &PlayReply{Status: status, Session: session}, nil
	case MethodPause:
		session, err := m.session()
		if err != nil {
			return nil, err
		}
		return &PauseReply{Status: status, Session: session}, nil
	case MethodTeardown:
		return &TeardownReply{Status: status}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCommand, method)
	}
}

func parseSetupReply(m *message, status Status) (*SetupReply, error) {
	session, err := m.session()
	if err != nil {
		return nil, err
	}
	value, err := m.require(fieldTransport)
	if err != nil {
		return nil, err
	}
	spec, err := transport.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolParse, err)
	}
	if err := spec.RequireServerPort(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolParse, err)
	}

	r := &SetupReply{Status: status, Session: session, Transport: *spec}
	if value, ok := m.fields[fieldLength]; ok {
		if r.Length, err = strconv.Atoi(value); err != nil || r.Length < 0 {
			return nil, fmt.Errorf("%w: invalid Length %q", ErrProtocolParse, value)
		}
	}
	return r, nil
}
