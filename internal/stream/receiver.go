package stream

import (
	"errors"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/bilbercode/framecast/internal/rtp"
)

const MaxDatagram = 65535

var ErrEndOfStream = errors.New("end of stream")

// Handler receives what the data channel decodes.
type Handler interface {
	OnFrame(frame Frame)
	OnSubtitle(text string)
}

type ReceiverConfig struct {
	// EndFrame stops the receiver when an image fragment at or past it
	// arrives. Zero disables the check.
	EndFrame int
}

// Receiver reads the data socket of a client session while the signal is
// open.
type Receiver struct {
	conn      net.PacketConn
	signal    *Signal
	assembler *Assembler
	handler   Handler
	config    ReceiverConfig
}

func NewReceiver(conn net.PacketConn, signal *Signal, assembler *Assembler, handler Handler, config ReceiverConfig) *Receiver {
	return &Receiver{
		conn:      conn,
		signal:    signal,
		assembler: assembler,
		handler:   handler,
		config:    config,
	}
}

// Run returns nil after teardown, ErrEndOfStream when the end frame is
// reached and the socket error otherwise. The socket must be closed on
// teardown to release a blocked read.
func (r *Receiver) Run() error {
	buf := make([]byte, MaxDatagram)
	for {
		if !r.signal.Wait() {
			return nil
		}
		n, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			if r.signal.TornDown() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		var p rtp.Packet
		if err := p.Unmarshal(buf[:n]); err != nil {
			packetsDropped.WithLabelValues("malformed").Inc()
			log.WithError(err).Debug("dropping datagram")
			continue
		}

		switch p.PayloadType {
		case rtp.PayloadImage:
			if r.config.EndFrame > 0 && r.assembler.Unwrap(p.Frame) >= r.config.EndFrame {
				return ErrEndOfStream
			}
			if frame, ok := r.assembler.Push(&p); ok {
				framesDelivered.Inc()
				r.handler.OnFrame(frame)
			}
		case rtp.PayloadText:
			r.handler.OnSubtitle(string(p.Payload))
		default:
			packetsDropped.WithLabelValues("payload_type").Inc()
		}
	}
}
