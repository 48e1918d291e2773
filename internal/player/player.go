package player

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/bilbercode/framecast/internal/rtsp"
	"github.com/bilbercode/framecast/internal/rtsp/transport"
	"github.com/bilbercode/framecast/internal/stream"
)

var (
	playerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "player_errors",
		Namespace: "framecast",
		Help:      "number of errors the player has encountered",
	}, []string{"type"})
	playerStreamEnds = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "player_stream_ends",
		Namespace: "framecast",
		Help:      "number of sessions torn down at the end of the resource",
	})
)

var _ Service = (*Player)(nil)

// Player is the client side of a session: it drives the control connection,
// receives frames over the data channel and publishes what it sees.
type Player struct {
	sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	config Config
	client rtsp.Client

	state     rtsp.State
	session   string
	resource  string
	total     int
	resources []string
	params    rtsp.PlaybackParams
	// stopping is the session an explicit TEARDOWN was sent for.
	stopping string
	// ranges holds the Range of each PLAY awaiting its reply, -1 for none.
	ranges []int
	playMu sync.Mutex

	data      *net.UDPConn
	signal    *stream.Signal
	assembler *stream.Assembler

	frame       []byte
	frameNumber int
	subtitle    string

	eventSubscribers map[string]func(event *Event)
}

func New(ctx context.Context, config Config) (*Player, error) {
	if config.BindAttempts < 1 {
		config.BindAttempts = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Player{
		ctx:              ctx,
		cancel:           cancel,
		config:           config,
		state:            rtsp.StateInit,
		params:           rtsp.DefaultPlaybackParams(),
		eventSubscribers: make(map[string]func(*Event)),
	}

	client, err := rtsp.Dial(ctx, config.Server, p.onReply)
	if err != nil {
		cancel()
		return nil, err
	}
	p.client = client
	go p.watch()

	log.Infof("connected to %s", config.Server)
	return p, nil
}

func (p *Player) State() rtsp.State {
	p.Lock()
	defer p.Unlock()
	return p.state
}

func (p *Player) Frame() []byte {
	p.Lock()
	defer p.Unlock()
	return p.frame
}

func (p *Player) FrameNumber() int {
	p.Lock()
	defer p.Unlock()
	return p.frameNumber
}

func (p *Player) Subtitle() string {
	p.Lock()
	defer p.Unlock()
	return p.subtitle
}

// Progress is the fraction of the resource shown so far.
func (p *Player) Progress() float64 {
	p.Lock()
	defer p.Unlock()
	if p.total == 0 {
		return 0
	}
	return float64(p.frameNumber) / float64(p.total)
}

func (p *Player) Resources() []string {
	p.Lock()
	defer p.Unlock()
	return append([]string(nil), p.resources...)
}

func (p *Player) Session() string {
	p.Lock()
	defer p.Unlock()
	return p.session
}

func (p *Player) SetSpeed(speed float64) {
	p.Lock()
	defer p.Unlock()
	p.params.Speed = speed
}

func (p *Player) SetSubtitleMode(enabled bool) {
	p.Lock()
	defer p.Unlock()
	p.params.SubtitleMode = enabled
}

func (p *Player) SetCompressMode(enabled bool) {
	p.Lock()
	defer p.Unlock()
	p.params.CompressMode = enabled
}

func (p *Player) SetSubtitleAdjust(seconds float64) {
	p.Lock()
	defer p.Unlock()
	p.params.SubtitleAdjust = seconds
}

// preflight rejects a command the current state does not allow, before
// anything is sent.
func (p *Player) preflight(method rtsp.Method) error {
	if _, err := rtsp.Transition(p.state, method); err != nil {
		return err
	}
	return nil
}

func (p *Player) send(request rtsp.Request) error {
	if err := p.client.Send(request); err != nil {
		playerErrors.WithLabelValues("send").Inc()
		return err
	}
	log.Debugf("sent %s", request.Method())
	return nil
}

func (p *Player) Describe() error {
	p.Lock()
	if err := p.preflight(rtsp.MethodDescribe); err != nil {
		p.Unlock()
		return err
	}
	request := &rtsp.DescribeRequest{RequestHeader: rtsp.RequestHeader{URL: p.resource, Session: p.session}}
	p.Unlock()
	return p.send(request)
}

// Setup binds the data socket and asks the server for a session on the
// named resource.
func (p *Player) Setup(name string) error {
	p.Lock()
	if err := p.preflight(rtsp.MethodSetup); err != nil {
		p.Unlock()
		return err
	}
	if p.data != nil {
		p.Unlock()
		return ErrSetupPending
	}
	data, err := stream.Listen(p.ctx, p.config.Ports, p.config.BindAttempts)
	if err != nil {
		p.Unlock()
		playerErrors.WithLabelValues("bind").Inc()
		return fmt.Errorf("failed to bind data channel: %w", err)
	}
	p.data = data
	p.resource = name
	port := data.LocalAddr().(*net.UDPAddr).Port
	p.Unlock()

	err = p.send(&rtsp.SetupRequest{
		RequestHeader: rtsp.RequestHeader{URL: name},
		Transport:     transport.Spec{Protocol: transport.ProtocolUDP, ClientPort: transport.ClientPort(port)},
	})
	if err != nil {
		p.Lock()
		if p.data == data {
			p.data = nil
			p.resource = ""
		}
		p.Unlock()
		_ = data.Close()
	}
	return err
}

// Load is Setup under the name display layers use.
func (p *Player) Load(name string) error {
	return p.Setup(name)
}

func (p *Player) Play() error {
	return p.play(-1)
}

// Seek plays from fraction of the resource, between 0 and 1.
func (p *Player) Seek(fraction float64) error {
	p.Lock()
	total := p.total
	p.Unlock()
	switch {
	case fraction < 0:
		fraction = 0
	case fraction > 1:
		fraction = 1
	}
	frame := int(fraction * float64(total))
	if frame >= total {
		frame = total - 1
	}
	if frame < 0 {
		frame = 0
	}
	return p.play(frame)
}

// play sends PLAY, resuming after frame when it is not negative. The
// receiver moves to frame once the server accepts.
func (p *Player) play(frame int) error {
	p.playMu.Lock()
	defer p.playMu.Unlock()

	p.Lock()
	if err := p.preflight(rtsp.MethodPlay); err != nil {
		p.Unlock()
		return err
	}
	request := &rtsp.PlayRequest{
		RequestHeader: rtsp.RequestHeader{URL: p.resource, Session: p.session},
		Params:        p.params,
	}
	if frame >= 0 {
		request.Range = frame
		request.HasRange = true
	}
	p.ranges = append(p.ranges, frame)
	p.Unlock()

	if err := p.send(request); err != nil {
		p.Lock()
		if n := len(p.ranges); n > 0 {
			p.ranges = p.ranges[:n-1]
		}
		p.Unlock()
		return err
	}
	return nil
}

// nextRange pops the Range of the oldest pending PLAY and must be called
// with the lock held.
func (p *Player) nextRange() int {
	if len(p.ranges) == 0 {
		return -1
	}
	frame := p.ranges[0]
	p.ranges = p.ranges[1:]
	return frame
}

func (p *Player) Pause() error {
	p.Lock()
	if err := p.preflight(rtsp.MethodPause); err != nil {
		p.Unlock()
		return err
	}
	request := &rtsp.PauseRequest{RequestHeader: rtsp.RequestHeader{URL: p.resource, Session: p.session}}
	p.Unlock()
	return p.send(request)
}

func (p *Player) Stop() error {
	p.Lock()
	if err := p.preflight(rtsp.MethodTeardown); err != nil {
		p.Unlock()
		return err
	}
	p.stopping = p.session
	request := &rtsp.TeardownRequest{RequestHeader: rtsp.RequestHeader{URL: p.resource, Session: p.session}}
	p.Unlock()
	return p.send(request)
}

// Subscribe registers f for every event and immediately sends it the current
// state. The returned func removes the subscription.
func (p *Player) Subscribe(f func(*Event)) func() {
	id := uuid.NewString()
	p.Lock()
	p.eventSubscribers[id] = f
	state := p.state
	p.Unlock()

	f(&Event{Type: EventTypeState, State: state})
	return func() {
		p.Lock()
		defer p.Unlock()
		delete(p.eventSubscribers, id)
	}
}

func (p *Player) Close() {
	p.cancel()
	_ = p.client.Close()
	p.Lock()
	p.teardown()
	p.Unlock()
}

// emit delivers events outside the lock so subscribers may call back into
// the player.
func (p *Player) emit(events ...*Event) {
	p.Lock()
	subscribers := make([]func(*Event), 0, len(p.eventSubscribers))
	for _, h := range p.eventSubscribers {
		subscribers = append(subscribers, h)
	}
	p.Unlock()

	for _, event := range events {
		for _, h := range subscribers {
			h(event)
		}
	}
}

func (p *Player) onReply(method rtsp.Method, reply rtsp.Reply, err error) {
	if err != nil {
		p.onLost(method, err)
		return
	}
	if e, ok := reply.(*rtsp.ErrorReply); ok {
		p.onError(method, e)
		return
	}

	p.Lock()
	if _, ok := reply.(*rtsp.TeardownReply); ok && (p.stopping == "" || p.stopping != p.session) {
		// the session already ended locally
		p.Unlock()
		return
	}
	next, err := rtsp.Transition(p.state, method)
	if err != nil {
		p.Unlock()
		playerErrors.WithLabelValues("stale_reply").Inc()
		log.WithError(err).Warnf("dropping %s reply", method)
		return
	}

	previous := p.state
	var events []*Event
	switch r := reply.(type) {
	case *rtsp.DescribeReply:
		p.resources = r.List
		events = append(events, &Event{Type: EventTypeResources, Resources: append([]string(nil), r.List...)})
	case *rtsp.SetupReply:
		if p.data == nil {
			p.Unlock()
			log.Warnf("dropping SETUP reply for session %s without a data channel", r.Session)
			return
		}
		p.session = r.Session
		p.total = r.Length
		p.startReceiver()
		log.WithFields(log.Fields{
			"session":  r.Session,
			"resource": p.resource,
			"frames":   r.Length,
			"server":   int(r.Transport.ServerPort),
		}).Info("session set up")
	case *rtsp.PlayReply:
		frame := p.nextRange()
		if r.Session != p.session {
			p.Unlock()
			log.Warnf("dropping PLAY reply for session %s", r.Session)
			return
		}
		if frame >= 0 {
			p.assembler.Reset(frame)
		}
		p.signal.Play()
	case *rtsp.PauseReply:
		if r.Session != p.session {
			p.Unlock()
			log.Warnf("dropping PAUSE reply for session %s", r.Session)
			return
		}
		p.signal.Pause()
	case *rtsp.TeardownReply:
		p.teardown()
	}

	if next != previous {
		log.Debugf("%s: %s -> %s", method, previous, next)
		events = append(events, &Event{Type: EventTypeState, State: next})
	}
	p.state = next
	p.Unlock()
	p.emit(events...)
}

func (p *Player) onError(method rtsp.Method, reply *rtsp.ErrorReply) {
	playerErrors.WithLabelValues("reply").Inc()
	log.WithError(reply).Warnf("%s rejected", method)

	p.Lock()
	p.release(method)
	p.Unlock()
	p.emit(&Event{Type: EventTypeError, Err: reply})
}

// onLost handles a request whose reply will never be seen.
func (p *Player) onLost(method rtsp.Method, err error) {
	playerErrors.WithLabelValues("lost_reply").Inc()
	log.WithError(err).Warnf("%s reply lost", method)

	p.Lock()
	p.release(method)
	p.Unlock()
	p.emit(&Event{Type: EventTypeError, Err: err})
}

// release undoes what a request prepared locally when it fails. It must be
// called with the lock held.
func (p *Player) release(method rtsp.Method) {
	switch method {
	case rtsp.MethodSetup:
		if p.session == "" && p.data != nil {
			_ = p.data.Close()
			p.data = nil
			p.resource = ""
		}
	case rtsp.MethodPlay:
		p.nextRange()
	case rtsp.MethodTeardown:
		p.stopping = ""
	}
}

// startReceiver must be called with the lock held.
func (p *Player) startReceiver() {
	end := p.total - p.config.EndGuard
	if end < 1 {
		end = p.total
	}
	signal := stream.NewSignal()
	assembler := stream.NewAssembler(p.config.Window)
	receiver := stream.NewReceiver(p.data, signal, assembler, &sink{player: p, signal: signal}, stream.ReceiverConfig{EndFrame: end})

	p.signal = signal
	p.assembler = assembler
	go p.receive(receiver, signal)
}

func (p *Player) receive(receiver *stream.Receiver, signal *stream.Signal) {
	err := receiver.Run()
	switch {
	case err == nil:
		return
	case errors.Is(err, stream.ErrEndOfStream):
		playerStreamEnds.Inc()
		p.endOfStream(signal)
	default:
		playerErrors.WithLabelValues("receive").Inc()
		log.WithError(err).Warn("data channel failed")
		p.reset(signal, err)
	}
}

// endOfStream tears the session down on both sides without waiting for the
// reply.
func (p *Player) endOfStream(signal *stream.Signal) {
	p.Lock()
	if p.signal != signal {
		p.Unlock()
		return
	}
	request := &rtsp.TeardownRequest{RequestHeader: rtsp.RequestHeader{URL: p.resource, Session: p.session}}
	log.WithField("session", p.session).Info("end of stream reached")
	p.Unlock()

	if err := p.send(request); err != nil {
		log.WithError(err).Warn("failed to send TEARDOWN at end of stream")
	}
	p.reset(signal, nil)
}

// reset tears the session down locally when signal still belongs to it.
func (p *Player) reset(signal *stream.Signal, cause error) {
	p.Lock()
	if signal != nil && p.signal != signal {
		p.Unlock()
		return
	}
	changed := p.state != rtsp.StateInit
	p.teardown()
	p.Unlock()

	var events []*Event
	if changed {
		events = append(events, &Event{Type: EventTypeState, State: rtsp.StateInit})
	}
	if cause != nil {
		events = append(events, &Event{Type: EventTypeError, Err: cause})
	}
	p.emit(events...)
}

// teardown must be called with the lock held.
func (p *Player) teardown() {
	if p.signal != nil {
		p.signal.Teardown()
	}
	if p.data != nil {
		_ = p.data.Close()
	}
	if p.session != "" {
		log.WithField("session", p.session).Info("session torn down")
	}
	p.signal = nil
	p.data = nil
	p.assembler = nil
	p.session = ""
	p.stopping = ""
	p.ranges = nil
	p.resource = ""
	p.total = 0
	p.frame = nil
	p.frameNumber = 0
	p.subtitle = ""
	p.state = rtsp.StateInit
}

// watch resets the player when the control connection goes away.
func (p *Player) watch() {
	select {
	case <-p.ctx.Done():
		_ = p.client.Close()
		p.reset(nil, nil)
		return
	case <-p.client.Done():
	}
	if p.ctx.Err() != nil {
		return
	}
	cause := p.client.Err()
	if cause == nil {
		cause = fmt.Errorf("control connection closed: %w", net.ErrClosed)
	}
	playerErrors.WithLabelValues("control").Inc()
	log.WithError(cause).Warn("lost control connection")
	p.reset(nil, cause)
}

// sink hands data channel output to the player while its session lasts.
type sink struct {
	player *Player
	signal *stream.Signal
}

func (s *sink) OnFrame(frame stream.Frame) {
	p := s.player
	p.Lock()
	if p.signal != s.signal {
		p.Unlock()
		return
	}
	p.frame = frame.Data
	p.frameNumber = frame.Number
	p.Unlock()
	p.emit(&Event{Type: EventTypeFrame, Frame: frame})
}

func (s *sink) OnSubtitle(text string) {
	p := s.player
	p.Lock()
	if p.signal != s.signal {
		p.Unlock()
		return
	}
	p.subtitle = text
	p.Unlock()
	p.emit(&Event{Type: EventTypeSubtitle, Subtitle: text})
}
