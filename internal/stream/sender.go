package stream

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bilbercode/framecast/internal/rtp"
)

const (
	DefaultFrameInterval = 100 * time.Millisecond
	DefaultMaxPayload    = 60000
)

// Source is a finite sequence of frames numbered from 1.
type Source interface {
	Len() int
	Frame(n int) ([]byte, error)
	// Subtitle returns the cue shown with frame n, empty when there is none.
	Subtitle(n int) string
}

type SenderConfig struct {
	Interval   time.Duration
	MaxPayload int
}

// Sender paces the frames of a source to one client while the signal is
// open, looping back to the first frame after the last.
type Sender struct {
	conn   net.PacketConn
	dest   net.Addr
	source Source
	signal *Signal
	config SenderConfig

	cursor    atomic.Int64
	subtitles atomic.Bool
	done      chan struct{}
	log       *log.Entry
}

func NewSender(conn net.PacketConn, dest net.Addr, source Source, signal *Signal, config SenderConfig) *Sender {
	if config.Interval <= 0 {
		config.Interval = DefaultFrameInterval
	}
	if config.MaxPayload <= 0 || config.MaxPayload > 65507-rtp.HeaderSize {
		config.MaxPayload = DefaultMaxPayload
	}
	return &Sender{
		conn:   conn,
		dest:   dest,
		source: source,
		signal: signal,
		config: config,
		done:   make(chan struct{}),
		log:    log.WithField("dest", dest.String()),
	}
}

// Seek makes frame the last one sent, so playback resumes after it.
func (s *Sender) Seek(frame int) {
	total := s.source.Len()
	switch {
	case frame < 0:
		frame = 0
	case frame > total:
		frame = total
	}
	s.cursor.Store(int64(frame))
}

func (s *Sender) Cursor() int {
	return int(s.cursor.Load())
}

func (s *Sender) SetSubtitles(enabled bool) {
	s.subtitles.Store(enabled)
}

// Done is closed when Run has returned.
func (s *Sender) Done() <-chan struct{} {
	return s.done
}

func (s *Sender) Run() {
	defer close(s.done)
	for {
		if !s.signal.Wait() {
			return
		}
		select {
		case <-time.After(s.config.Interval):
		case <-s.signal.Done():
			return
		}
		if !s.signal.Playing() {
			continue
		}

		n := s.next()
		if n == 0 {
			continue
		}
		if err := s.emit(n); err != nil {
			if s.signal.TornDown() {
				return
			}
			sendErrors.Inc()
			s.log.WithError(err).Warnf("failed to send frame %d", n)
		}
	}
}

func (s *Sender) next() int {
	total := int64(s.source.Len())
	if total == 0 {
		return 0
	}
	for {
		current := s.cursor.Load()
		n := current%total + 1
		if s.cursor.CompareAndSwap(current, n) {
			return int(n)
		}
	}
}

func (s *Sender) emit(n int) error {
	if s.subtitles.Load() {
		if err := s.send(rtp.NewSubtitle(uint16(n), s.source.Subtitle(n))); err != nil {
			return err
		}
		packetsSent.WithLabelValues("text").Inc()
	}

	data, err := s.source.Frame(n)
	if err != nil {
		return fmt.Errorf("failed to load frame %d: %w", n, err)
	}
	for offset := 0; ; offset += s.config.MaxPayload {
		end := offset + s.config.MaxPayload
		if end > len(data) {
			end = len(data)
		}
		last := end == len(data)
		if err := s.send(rtp.NewImageFragment(uint16(n), len(data), last, data[offset:end])); err != nil {
			return err
		}
		packetsSent.WithLabelValues("image").Inc()
		if last {
			break
		}
	}
	framesSent.Inc()
	return nil
}

func (s *Sender) send(p *rtp.Packet) error {
	b, err := p.Marshal()
	if err != nil {
		return err
	}
	_, err = s.conn.WriteTo(b, s.dest)
	if err != nil {
		return fmt.Errorf("failed to write packet to %s: %w", s.dest, err)
	}
	return nil
}
