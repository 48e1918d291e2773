package stream

import (
	"sync"

	"github.com/bilbercode/framecast/internal/rtp"
)

const DefaultWindow = 30

type Frame struct {
	Number int
	Data   []byte
}

// Assembler rebuilds frames from image fragments. Fragments are buffered
// under their frame number; a new number discards the buffer and the marker
// closes the frame. A closed frame is delivered only when it lies within
// window frames ahead of the last delivered one and matches its declared
// size. Wire numbers are 16 bits and are unwrapped against the cursor, so
// frames keep flowing past 65535.
type Assembler struct {
	mu     sync.Mutex
	window int
	cursor int
	key    uint16
	buf    []byte
}

// NewAssembler returns an assembler whose cursor is at frame 0. A window of
// zero or less accepts any frame less than half the number space ahead.
func NewAssembler(window int) *Assembler {
	return &Assembler{window: window}
}

// Reset discards any partial frame and moves the cursor, used on seek.
func (a *Assembler) Reset(cursor int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cursor = cursor
	a.buf = a.buf[:0]
}

func (a *Assembler) Cursor() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor
}

// Unwrap maps a wire frame number to the full frame number closest to the
// cursor.
func (a *Assembler) Unwrap(frame uint16) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unwrap(frame)
}

func (a *Assembler) unwrap(frame uint16) int {
	return a.cursor + int(int16(frame-uint16(a.cursor)))
}

func (a *Assembler) Push(p *rtp.Packet) (Frame, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p.Frame != a.key {
		if len(a.buf) > 0 {
			packetsDropped.WithLabelValues("incomplete").Inc()
		}
		a.buf = a.buf[:0]
		a.key = p.Frame
	}
	a.buf = append(a.buf, p.Payload...)
	if !p.Marker {
		return Frame{}, false
	}
	defer func() {
		a.buf = a.buf[:0]
	}()

	n := a.unwrap(p.Frame)
	if n <= a.cursor || (a.window > 0 && n > a.cursor+a.window) {
		packetsDropped.WithLabelValues("window").Inc()
		return Frame{}, false
	}
	a.cursor = n

	if size := p.DeclaredSize(); size != 0 && size != len(a.buf) {
		packetsDropped.WithLabelValues("size").Inc()
		return Frame{}, false
	}

	data := make([]byte, len(a.buf))
	copy(data, a.buf)
	return Frame{Number: n, Data: data}, true
}
