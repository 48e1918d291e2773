package rtp

import (
	"errors"
	"fmt"
	"time"

	"github.com/pion/rtp"
)

// HeaderSize is the fixed size of every packet header. The CSRC count,
// extension and padding bits are carried as plain flags and never imply
// trailing header data.
const HeaderSize = 12

type PayloadType uint8

const (
	PayloadGeneric PayloadType = 0
	PayloadImage   PayloadType = 26
	PayloadText    PayloadType = 98
)

func (t PayloadType) String() string {
	switch t {
	case PayloadGeneric:
		return "generic"
	case PayloadImage:
		return "image"
	case PayloadText:
		return "text"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

var ErrMalformedPacket = errors.New("malformed packet")

// Packet is one datagram of the data channel. Frame is the frame index the
// payload belongs to; on image fragments SSRC carries the size of the whole
// frame in bytes, zero when undeclared.
type Packet struct {
	Version     uint8
	Padding     bool
	Extension   bool
	CSRCCount   uint8
	Marker      bool
	PayloadType PayloadType
	Frame       uint16
	Timestamp   uint32
	SSRC        uint32
	Payload     []byte
}

func NewImageFragment(frame uint16, size int, last bool, payload []byte) *Packet {
	return &Packet{
		Version:     2,
		Marker:      last,
		PayloadType: PayloadImage,
		Frame:       frame,
		Timestamp:   uint32(time.Now().Unix()),
		SSRC:        uint32(size),
		Payload:     payload,
	}
}

func NewSubtitle(frame uint16, text string) *Packet {
	return &Packet{
		Version:     2,
		Marker:      true,
		PayloadType: PayloadText,
		Frame:       frame,
		Timestamp:   uint32(time.Now().Unix()),
		Payload:     []byte(text),
	}
}

// DeclaredSize is the frame size announced by an image fragment.
func (p *Packet) DeclaredSize() int {
	return int(p.SSRC)
}

// Marshal packs the header and appends the payload. Fields wider than their
// bit allocation are truncated.
func (p *Packet) Marshal() ([]byte, error) {
	header := rtp.Header{
		Version:        p.Version & 0x03,
		Marker:         p.Marker,
		PayloadType:    uint8(p.PayloadType) & 0x7f,
		SequenceNumber: p.Frame,
		Timestamp:      p.Timestamp,
		SSRC:           p.SSRC,
	}
	b, err := header.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal packet header: %w", err)
	}
	if len(b) != HeaderSize {
		return nil, fmt.Errorf("unexpected header size %d", len(b))
	}

	b[0] |= boolToBit(p.Padding)<<5 | boolToBit(p.Extension)<<4 | p.CSRCCount&0x0f

	buf := make([]byte, HeaderSize+len(p.Payload))
	copy(buf, b)
	copy(buf[HeaderSize:], p.Payload)
	return buf, nil
}

func (p *Packet) Unmarshal(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrMalformedPacket, len(buf))
	}

	// hand only the fixed fields to the decoder so flags in byte 0 cannot
	// make it look for CSRC lists, extensions or padding
	fixed := make([]byte, HeaderSize)
	copy(fixed, buf[:HeaderSize])
	fixed[0] &= 0xc0

	var decoded rtp.Packet
	if err := decoded.Unmarshal(fixed); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	p.Version = decoded.Version
	p.Padding = buf[0]&0x20 != 0
	p.Extension = buf[0]&0x10 != 0
	p.CSRCCount = buf[0] & 0x0f
	p.Marker = decoded.Marker
	p.PayloadType = PayloadType(decoded.PayloadType)
	p.Frame = decoded.SequenceNumber
	p.Timestamp = decoded.Timestamp
	p.SSRC = decoded.SSRC
	p.Payload = append([]byte(nil), buf[HeaderSize:]...)
	return nil
}

func (p *Packet) String() string {
	return fmt.Sprintf("RTP{V=%d PT=%s M=%t Frame=%d TS=%d SSRC=%d Payload=%d bytes}",
		p.Version, p.PayloadType, p.Marker, p.Frame, p.Timestamp, p.SSRC, len(p.Payload))
}

func boolToBit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
