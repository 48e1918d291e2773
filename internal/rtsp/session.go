package rtsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/bilbercode/framecast/internal/rtsp/transport"
	"github.com/bilbercode/framecast/internal/stream"
)

// session serves one control connection. Only its own goroutine mutates
// it; the sender reads the signal and its own cursor.
type session struct {
	server *server
	conn   net.Conn
	base   *log.Entry
	log    *log.Entry

	state    State
	id       string
	resource string
	source   stream.Source
	params   PlaybackParams

	data   *net.UDPConn
	signal *stream.Signal
	sender *stream.Sender
}

func newSession(s *server, nc net.Conn) *session {
	entry := log.WithField("remote", nc.RemoteAddr().String())
	return &session{
		server: s,
		conn:   nc,
		base:   entry,
		log:    entry,
		state:  StateInit,
		params: DefaultPlaybackParams(),
	}
}

func (s *session) serve(ctx context.Context) {
	s.log.Info("control connection opened")
	reader := newMessageReader(s.conn)
	for {
		text, err := reader.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.WithError(err).Warn("control connection read failed")
			}
			break
		}

		reply := s.dispatch(ctx, text)
		if err := reply.Write(s.conn); err != nil {
			s.log.WithError(err).Warn("failed to write reply")
			break
		}
	}

	if s.state != StateInit {
		s.log.Info("connection lost, tearing down session")
		s.teardown()
	}
	_ = s.conn.Close()
	s.log.Info("control connection closed")
}

func (s *session) dispatch(ctx context.Context, text string) Reply {
	request, err := ParseRequest(text)
	if err != nil {
		return s.fail(SequenceOf(text), "unknown", err)
	}
	method := request.Method()
	header := HeaderOf(request)

	if err := s.checkSession(request); err != nil {
		return s.fail(header.CSeq, method.String(), err)
	}
	next, err := Transition(s.state, method)
	if err != nil {
		return s.fail(header.CSeq, method.String(), err)
	}

	var reply Reply
	switch r := request.(type) {
	case *DescribeRequest:
		reply, err = s.handleDescribe(r)
	case *SetupRequest:
		reply, err = s.handleSetup(ctx, r)
	case *PlayRequest:
		reply, err = s.handlePlay(r)
	case *PauseRequest:
		reply, err = s.handlePause(r)
	case *TeardownRequest:
		reply, err = s.handleTeardown(r)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedCommand, method)
	}
	if err != nil {
		return s.fail(header.CSeq, method.String(), err)
	}

	if next != s.state {
		s.log.Debugf("%s: %s -> %s", method, s.state, next)
	}
	s.state = next
	requestsTotal.WithLabelValues(method.String(), strconv.Itoa(http.StatusOK)).Inc()
	return reply
}

// checkSession requires commands on an open session to name it.
func (s *session) checkSession(request Request) error {
	switch request.Method() {
	case MethodPlay, MethodPause, MethodTeardown:
		if got := HeaderOf(request).Session; s.id == "" || got != s.id {
			return fmt.Errorf("%w: got %q", ErrSessionMismatch, got)
		}
	}
	return nil
}

func (s *session) fail(seq int, method string, err error) Reply {
	code := statusFor(err)
	requestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	s.log.WithError(err).Warnf("rejecting %s request", method)

	reply := &ErrorReply{Status: Status{Code: code, Reason: http.StatusText(code), CSeq: seq}}
	if code == http.StatusMethodNotAllowed {
		reply.Allow = Methods
	}
	return reply
}

func (s *session) handleDescribe(r *DescribeRequest) (Reply, error) {
	names, err := s.server.library.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return &DescribeReply{Status: okStatus(r.CSeq), List: names}, nil
}

func (s *session) handleSetup(ctx context.Context, r *SetupRequest) (Reply, error) {
	source, err := s.server.library.Open(r.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open resource %q: %w", r.URL, err)
	}

	id, err := s.server.sessions.Allocate()
	if err != nil {
		return nil, err
	}

	config := s.server.config
	data, err := stream.Listen(ctx, config.Ports, config.BindAttempts)
	if err != nil {
		s.server.sessions.Release(id)
		return nil, fmt.Errorf("failed to bind data channel: %w", err)
	}

	host, _, err := net.SplitHostPort(s.conn.RemoteAddr().String())
	if err != nil {
		_ = data.Close()
		s.server.sessions.Release(id)
		return nil, fmt.Errorf("failed to resolve client address: %w", err)
	}
	dest := &net.UDPAddr{IP: net.ParseIP(host), Port: int(r.Transport.ClientPort)}

	s.id = id
	s.resource = r.URL
	s.source = source
	s.data = data
	s.signal = stream.NewSignal()
	s.sender = stream.NewSender(data, dest, source, s.signal, config.Sender)
	go s.sender.Run()
	sessionsActive.Inc()

	serverPort := data.LocalAddr().(*net.UDPAddr).Port
	s.log = s.log.WithField("session", id)
	s.log.WithFields(log.Fields{
		"resource": r.URL,
		"frames":   source.Len(),
		"data":     fmt.Sprintf("%d -> %s", serverPort, dest),
	}).Info("session set up")

	return &SetupReply{
		Status:  okStatus(r.CSeq),
		Session: id,
		Transport: transport.Spec{
			Protocol:   r.Transport.Protocol,
			ClientPort: r.Transport.ClientPort,
			ServerPort: transport.ServerPort(serverPort),
		},
		Length: source.Len(),
	}, nil
}

func (s *session) handlePlay(r *PlayRequest) (Reply, error) {
	if r.HasRange {
		s.sender.Seek(r.Range)
	}
	s.params = r.Params
	s.sender.SetSubtitles(r.Params.SubtitleMode)
	s.log.WithFields(log.Fields{
		"from":            s.sender.Cursor(),
		"speed":           r.Params.Speed,
		"subtitle_mode":   r.Params.SubtitleMode,
		"compress_mode":   r.Params.CompressMode,
		"subtitle_adjust": r.Params.SubtitleAdjust,
	}).Info("playing")
	s.signal.Play()
	return &PlayReply{Status: okStatus(r.CSeq), Session: s.id}, nil
}

func (s *session) handlePause(r *PauseRequest) (Reply, error) {
	s.signal.Pause()
	s.log.Infof("paused at frame %d", s.sender.Cursor())
	return &PauseReply{Status: okStatus(r.CSeq), Session: s.id}, nil
}

func (s *session) handleTeardown(r *TeardownRequest) (Reply, error) {
	s.teardown()
	return &TeardownReply{Status: okStatus(r.CSeq)}, nil
}

// teardown stops the data channel, waits for the sender to exit and frees
// the session id.
func (s *session) teardown() {
	if s.signal != nil {
		s.signal.Teardown()
	}
	if s.data != nil {
		_ = s.data.Close()
	}
	if s.sender != nil {
		<-s.sender.Done()
	}
	if s.id != "" {
		s.server.sessions.Release(s.id)
		sessionsActive.Dec()
		s.log.Info("session torn down")
	}

	s.log = s.base
	s.id = ""
	s.resource = ""
	s.source = nil
	s.data = nil
	s.signal = nil
	s.sender = nil
	s.params = DefaultPlaybackParams()
	s.state = StateInit
}
