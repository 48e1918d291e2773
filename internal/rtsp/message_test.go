package rtsp

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/bilbercode/framecast/internal/rtsp/transport"
)

func write(t *testing.T, m interface{ Write(w io.Writer) error }) string {
	t.Helper()
	var buf bytes.Buffer
	if err := m.Write(&buf); err != nil {
		t.Fatalf("Failed to write message: %v", err)
	}
	return buf.String()
}

func TestParseRequestVariants(t *testing.T) {
	play := &PlayRequest{
		RequestHeader: RequestHeader{URL: "movie.A", CSeq: 4, Session: "12345678"},
		Range:         42,
		HasRange:      true,
		Params:        PlaybackParams{Speed: 1.5, SubtitleMode: true, SubtitleAdjust: -0.5},
	}
	tests := []Request{
		&DescribeRequest{RequestHeader: RequestHeader{CSeq: 1}},
		&SetupRequest{
			RequestHeader: RequestHeader{URL: "movie.A", CSeq: 2},
			Transport:     transport.Spec{Protocol: transport.ProtocolUDP, ClientPort: 5004},
		},
		play,
		&PauseRequest{RequestHeader: RequestHeader{URL: "movie.A", CSeq: 5, Session: "12345678"}},
		&TeardownRequest{RequestHeader: RequestHeader{URL: "movie.A", CSeq: 6, Session: "12345678"}},
	}

	for _, expected := range tests {
		t.Run(expected.Method().String(), func(t *testing.T) {
			got, err := ParseRequest(write(t, expected))
			if err != nil {
				t.Fatalf("Failed to parse request: %v", err)
			}
			if !reflect.DeepEqual(got, expected) {
				t.Errorf("Expected %+v, got %+v", expected, got)
			}
		})
	}
}

func TestParseRequestLenientFields(t *testing.T) {
	// older clients omit colons and use bare line feeds
	text := "PLAY movie.A RTSP/1.0\nCSeq 3\nSession 87654321\nRange: npt=10\nSubtitle-Mode: True\n"
	request, err := ParseRequest(text)
	if err != nil {
		t.Fatalf("Failed to parse request: %v", err)
	}
	play, ok := request.(*PlayRequest)
	if !ok {
		t.Fatalf("Expected *PlayRequest, got %T", request)
	}
	if play.CSeq != 3 || play.Session != "87654321" {
		t.Errorf("Unexpected header %+v", play.RequestHeader)
	}
	if !play.HasRange || play.Range != 10 {
		t.Errorf("Expected range 10, got %d (%t)", play.Range, play.HasRange)
	}
	if !play.Params.SubtitleMode || play.Params.Speed != 1 {
		t.Errorf("Unexpected params %+v", play.Params)
	}
}

func TestParseRequestEmptyURL(t *testing.T) {
	request, err := ParseRequest("DESCRIBE  RTSP/1.0\nCSeq: 1\n")
	if err != nil {
		t.Fatalf("Failed to parse request: %v", err)
	}
	if HeaderOf(request).URL != "" || request.Method() != MethodDescribe {
		t.Errorf("Unexpected request %+v", request)
	}
}

func TestParseRequestFailures(t *testing.T) {
	tests := []struct {
		name string
		text string
		err  error
	}{
		{name: "empty", text: "\n\n", err: ErrProtocolParse},
		{name: "missing version", text: "PLAY movie.A\nCSeq: 1\nSession: 1\n", err: ErrProtocolParse},
		{name: "missing cseq", text: "DESCRIBE movie.A RTSP/1.0\n", err: ErrProtocolParse},
		{name: "bad cseq", text: "DESCRIBE movie.A RTSP/1.0\nCSeq: one\n", err: ErrProtocolParse},
		{name: "unknown command", text: "RECORD movie.A RTSP/1.0\nCSeq: 1\n", err: ErrUnsupportedCommand},
		{name: "setup without transport", text: "SETUP movie.A RTSP/1.0\nCSeq: 1\n", err: ErrProtocolParse},
		{name: "setup without client port", text: "SETUP movie.A RTSP/1.0\nCSeq: 1\nTransport: RTP/UDP;server_port=9\n", err: ErrProtocolParse},
		{name: "play without session", text: "PLAY movie.A RTSP/1.0\nCSeq: 1\n", err: ErrProtocolParse},
		{name: "teardown with empty session", text: "TEARDOWN movie.A RTSP/1.0\nCSeq: 1\nSession:\n", err: ErrProtocolParse},
		{name: "bad range", text: "PLAY movie.A RTSP/1.0\nCSeq: 1\nSession: 1\nRange: npt=abc\n", err: ErrProtocolParse},
		{name: "bad speed", text: "PLAY movie.A RTSP/1.0\nCSeq: 1\nSession: 1\nSpeed: fast\n", err: ErrProtocolParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest(tt.text)
			if !errors.Is(err, tt.err) {
				t.Errorf("Expected %v, got %v", tt.err, err)
			}
		})
	}
}

func TestParseReplyVariants(t *testing.T) {
	tests := []struct {
		method Method
		reply  Reply
	}{
		{MethodDescribe, &DescribeReply{Status: okStatus(1), List: []string{"movie.A", "a,b"}}},
		{MethodSetup, &SetupReply{
			Status:    okStatus(2),
			Session:   "12345678",
			Transport: transport.Spec{Protocol: transport.ProtocolUDP, ClientPort: 5004, ServerPort: 7000},
			Length:    183,
		}},
		{MethodPlay, &PlayReply{Status: okStatus(3), Session: "12345678"}},
		{MethodPause, &PauseReply{Status: okStatus(4), Session: "12345678"}},
		{MethodTeardown, &TeardownReply{Status: okStatus(5)}},
	}
	for _, tt := range tests {
		t.Run(tt.method.String(), func(t *testing.T) {
			got, err := ParseReply(write(t, tt.reply), tt.method)
			if err != nil {
				t.Fatalf("Failed to parse reply: %v", err)
			}
			if !reflect.DeepEqual(got, tt.reply) {
				t.Errorf("Expected %+v, got %+v", tt.reply, got)
			}
		})
	}
}

func TestParseErrorReplyStopsAtStatus(t *testing.T) {
	reply, err := ParseReply("RTSP/1.0 400 Bad Request\nSession: garbage that is never read\n", MethodPlay)
	if err != nil {
		t.Fatalf("Failed to parse reply: %v", err)
	}
	e, ok := reply.(*ErrorReply)
	if !ok {
		t.Fatalf("Expected *ErrorReply, got %T", reply)
	}
	if e.Code != 400 || e.Reason != "Bad Request" {
		t.Errorf("Unexpected status %d %q", e.Code, e.Reason)
	}
}

func TestParseReplyFailures(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		method Method
	}{
		{name: "bad status line", text: "HTTP/1.1 200 OK\nCSeq: 1\n", method: MethodTeardown},
		{name: "bad code", text: "RTSP/1.0 OK\nCSeq: 1\n", method: MethodTeardown},
		{name: "missing cseq", text: "RTSP/1.0 200 OK\n", method: MethodTeardown},
		{name: "setup without server port", text: "RTSP/1.0 200 OK\nCSeq: 1\nSession: 1\nTransport: RTP/UDP;client_port=5\n", method: MethodSetup},
		{name: "setup without session", text: "RTSP/1.0 200 OK\nCSeq: 1\nTransport: RTP/UDP;server_port=5\n", method: MethodSetup},
		{name: "describe without list", text: "RTSP/1.0 200 OK\nCSeq: 1\n", method: MethodDescribe},
		{name: "bad length", text: "RTSP/1.0 200 OK\nCSeq: 1\nSession: 1\nTransport: RTP/UDP;server_port=5\nLength: -3\n", method: MethodSetup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseReply(tt.text, tt.method); !errors.Is(err, ErrProtocolParse) {
				t.Errorf("Expected ErrProtocolParse, got %v", err)
			}
		})
	}
}

func TestWriteFieldOrder(t *testing.T) {
	text := write(t, &SetupReply{
		Status:    okStatus(7),
		Session:   "12345678",
		Transport: transport.Spec{ClientPort: 5004, ServerPort: 7000},
		Length:    3,
	})
	expected := "RTSP/1.0 200 OK\r\nCSeq: 7\r\nSession: 12345678\r\n" +
		"Transport: RTP/UDP;client_port=5004;server_port=7000\r\nLength: 3\r\n\r\n"
	if text != expected {
		t.Errorf("Expected %q, got %q", expected, text)
	}
}

func TestErrorReplyAllow(t *testing.T) {
	text := write(t, &ErrorReply{Status: Status{Code: 405}, Allow: Methods})
	if !strings.HasPrefix(text, "RTSP/1.0 405 Method Not Allowed\r\n") {
		t.Errorf("Unexpected status line in %q", text)
	}
	if !strings.Contains(text, "Allow: DESCRIBE, SETUP, PLAY, PAUSE, TEARDOWN") {
		t.Errorf("Expected Allow field in %q", text)
	}
	if strings.Contains(text, "CSeq") {
		t.Errorf("Expected no CSeq in %q", text)
	}
}

func TestSequenceOf(t *testing.T) {
	if got := SequenceOf("RTSP/1.0 400 Bad Request\nCSeq: 12\n"); got != 12 {
		t.Errorf("Expected 12, got %d", got)
	}
	if got := SequenceOf("RTSP/1.0 400 Bad Request\n"); got != 0 {
		t.Errorf("Expected 0, got %d", got)
	}
}

func TestListEncoding(t *testing.T) {
	tests := [][]string{
		{},
		{"movie.A"},
		{"movie.A", "movie.B"},
		{`a,b`, `c\d`, `e\,f`},
	}
	for _, names := range tests {
		got := DecodeList(EncodeList(names))
		if !reflect.DeepEqual(got, names) {
			t.Errorf("Expected %q, got %q", names, got)
		}
	}

	if got := EncodeList([]string{"a,b", `c\`}); got != `a\,b,c\\` {
		t.Errorf("Unexpected encoding %q", got)
	}
}

func TestMessageReader(t *testing.T) {
	stream := "\r\nDESCRIBE  RTSP/1.0\r\nCSeq: 1\r\n\r\nPLAY a RTSP/1.0\r\nCSeq: 2\r\nSession: 1"
	reader := newMessageReader(strings.NewReader(stream))

	first, err := reader.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	if first != "DESCRIBE  RTSP/1.0\nCSeq: 1" {
		t.Errorf("Unexpected first message %q", first)
	}

	second, err := reader.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	if SequenceOf(second) != 2 {
		t.Errorf("Unexpected second message %q", second)
	}

	if _, err := reader.ReadMessage(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected EOF, got %v", err)
	}
}
