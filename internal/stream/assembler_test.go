package stream

import (
	"bytes"
	"testing"

	"github.com/bilbercode/framecast/internal/rtp"
)

func fragments(frame uint16, data []byte, sizes ...int) []*rtp.Packet {
	var packets []*rtp.Packet
	offset := 0
	for i, size := range sizes {
		last := i == len(sizes)-1
		packets = append(packets, rtp.NewImageFragment(frame, len(data), last, data[offset:offset+size]))
		offset += size
	}
	return packets
}

func TestAssemblerJoinsFragments(t *testing.T) {
	a := NewAssembler(DefaultWindow)
	data := []byte("abcdefghij")

	var delivered []Frame
	for _, p := range fragments(1, data, 3, 3, 4) {
		if f, ok := a.Push(p); ok {
			delivered = append(delivered, f)
		}
	}

	if len(delivered) != 1 {
		t.Fatalf("Expected one frame, got %d", len(delivered))
	}
	if delivered[0].Number != 1 || !bytes.Equal(delivered[0].Data, data) {
		t.Errorf("Unexpected frame %d %q", delivered[0].Number, delivered[0].Data)
	}

	// a repeated final fragment must not deliver the frame again
	last := fragments(1, data, 3, 3, 4)[2]
	if _, ok := a.Push(last); ok {
		t.Errorf("Expected duplicate fragment to be dropped")
	}
	if a.Cursor() != 1 {
		t.Errorf("Expected cursor 1, got %d", a.Cursor())
	}
}

func TestAssemblerDropsSizeMismatch(t *testing.T) {
	a := NewAssembler(DefaultWindow)
	data := []byte("abcdefghij")
	packets := fragments(1, data, 3, 3, 4)

	// lose the middle fragment
	a.Push(packets[0])
	if _, ok := a.Push(packets[2]); ok {
		t.Fatalf("Expected incomplete frame to be dropped")
	}

	// the next frame starts from an empty buffer
	for _, p := range fragments(2, []byte("xyz"), 1, 2) {
		if f, ok := a.Push(p); ok && string(f.Data) != "xyz" {
			t.Errorf("Expected xyz, got %q", f.Data)
		}
	}
	if a.Cursor() != 2 {
		t.Errorf("Expected cursor 2, got %d", a.Cursor())
	}
}

func TestAssemblerFrameNumberChangeResetsBuffer(t *testing.T) {
	a := NewAssembler(DefaultWindow)
	a.Push(rtp.NewImageFragment(1, 0, false, []byte("stale")))

	f, ok := a.Push(rtp.NewImageFragment(2, 0, true, []byte("fresh")))
	if !ok {
		t.Fatalf("Expected frame 2 to be delivered")
	}
	if string(f.Data) != "fresh" {
		t.Errorf("Expected fresh, got %q", f.Data)
	}
}

func TestAssemblerWindow(t *testing.T) {
	a := NewAssembler(30)
	a.Reset(100)

	tests := []struct {
		frame   uint16
		deliver bool
	}{
		{frame: 99, deliver: false},
		{frame: 100, deliver: false},
		{frame: 131, deliver: false},
		{frame: 130, deliver: true},
		{frame: 129, deliver: false},
		{frame: 131, deliver: true},
	}
	for _, tt := range tests {
		_, ok := a.Push(rtp.NewImageFragment(tt.frame, 1, true, []byte{0}))
		if ok != tt.deliver {
			t.Errorf("frame %d: expected delivered=%t, got %t", tt.frame, tt.deliver, ok)
		}
	}
}

func TestAssemblerUnboundedWindow(t *testing.T) {
	a := NewAssembler(0)
	if _, ok := a.Push(rtp.NewImageFragment(5000, 1, true, []byte{0})); !ok {
		t.Errorf("Expected far frame to be delivered without a window")
	}
}

func TestAssemblerFrameNumberWraps(t *testing.T) {
	a := NewAssembler(DefaultWindow)
	a.Reset(65529)

	delivered := 0
	for n := 65530; n <= 65560; n++ {
		f, ok := a.Push(rtp.NewImageFragment(uint16(n), 1, true, []byte{0}))
		if !ok {
			t.Errorf("Expected frame %d to be delivered", n)
			continue
		}
		if f.Number != n {
			t.Errorf("Expected frame number %d, got %d", n, f.Number)
		}
		delivered++
	}
	if delivered != 31 {
		t.Errorf("Expected 31 frames, got %d", delivered)
	}
	if a.Cursor() != 65560 {
		t.Errorf("Expected cursor 65560, got %d", a.Cursor())
	}

	// a frame from before the wrap is behind the cursor
	if _, ok := a.Push(rtp.NewImageFragment(65534, 1, true, []byte{0})); ok {
		t.Errorf("Expected frame 65534 to be dropped after the wrap")
	}
}

func TestAssemblerUnwrap(t *testing.T) {
	a := NewAssembler(DefaultWindow)
	a.Reset(65530)

	tests := []struct {
		frame    uint16
		expected int
	}{
		{frame: 65530, expected: 65530},
		{frame: 65535, expected: 65535},
		{frame: 0, expected: 65536},
		{frame: 10, expected: 65546},
		{frame: 65500, expected: 65500},
	}
	for _, tt := range tests {
		if n := a.Unwrap(tt.frame); n != tt.expected {
			t.Errorf("frame %d: expected %d, got %d", tt.frame, tt.expected, n)
		}
	}
}
